package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tablepoints/tablepoints-backend/pkg/config"
)

// ErrSubscriptionGone marks an endpoint the provider reports as permanently
// invalid (HTTP 404/410). Callers must prune the stored subscription.
var ErrSubscriptionGone = errors.New("push subscription gone")

// ErrNotConfigured is returned when the VAPID key pair is absent.
var ErrNotConfigured = errors.New("push provider not configured")

// Subscription is the stored Web Push subscription descriptor.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Sender delivers a payload to a single push subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload []byte) error
}

// WebPushSender sends Web Push messages signed with the configured VAPID keys.
type WebPushSender struct {
	cfg    config.PushConfig
	client *http.Client
}

// NewWebPushSender builds a sender from the push configuration.
func NewWebPushSender(cfg config.PushConfig) (*WebPushSender, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	return &WebPushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SendTimeout},
	}, nil
}

func (s *WebPushSender) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		TTL:             s.cfg.TTL,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return fmt.Errorf("sending push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push provider status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
