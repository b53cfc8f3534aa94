package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
	"github.com/tablepoints/tablepoints-backend/pkg/metrics"
	"github.com/tablepoints/tablepoints-backend/pkg/push"
)

// maxConcurrentSends bounds the delivery fan-out for one request.
const maxConcurrentSends = 8

// Service manages notification permissions and push delivery.
type Service interface {
	UpsertPermission(ctx context.Context, input PermissionInput) (*PermissionResult, error)
	SendToRestaurant(ctx context.Context, input SendInput) (*SendResult, error)
}

type service struct {
	repo    Repository
	sender  push.Sender
	logg    *logger.Logger
	metrics *metrics.LoyaltyMetrics
}

// NewService wires the notification service. Sender may be nil when push is
// not configured; sends then fail hard while permission writes keep working.
func NewService(repo Repository, sender push.Sender, logg *logger.Logger, m *metrics.LoyaltyMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	return &service{
		repo:    repo,
		sender:  sender,
		logg:    logg,
		metrics: m,
	}, nil
}

// PermissionInput captures a permission grant or revocation plus the optional
// push subscription that came with it.
type PermissionInput struct {
	CustomerID        uuid.UUID `json:"customerId"`
	RestaurantID      uuid.UUID `json:"restaurantId"`
	PermissionGranted bool      `json:"permissionGranted"`
	Endpoint          *string   `json:"endpoint,omitempty"`
	P256dh            *string   `json:"p256dh,omitempty"`
	Auth              *string   `json:"auth,omitempty"`
}

// PermissionResult reports the stored state without exposing subscription keys.
type PermissionResult struct {
	CustomerID        uuid.UUID `json:"customerId"`
	RestaurantID      uuid.UUID `json:"restaurantId"`
	PermissionGranted bool      `json:"permissionGranted"`
	HasSubscription   bool      `json:"hasSubscription"`
}

func (s *service) UpsertPermission(ctx context.Context, input PermissionInput) (*PermissionResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if err := validateSubscriptionFields(input); err != nil {
		return nil, err
	}

	permission := &models.NotificationPermission{
		CustomerID:        input.CustomerID,
		RestaurantID:      input.RestaurantID,
		PermissionGranted: input.PermissionGranted,
		Endpoint:          input.Endpoint,
		P256dh:            input.P256dh,
		Auth:              input.Auth,
	}
	if err := s.repo.Upsert(ctx, permission); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert notification permission")
	}

	return &PermissionResult{
		CustomerID:        permission.CustomerID,
		RestaurantID:      permission.RestaurantID,
		PermissionGranted: permission.PermissionGranted,
		HasSubscription:   permission.HasSubscription(),
	}, nil
}

// validateSubscriptionFields requires the three subscription fields to travel
// together: a partial subscription is unusable for delivery.
func validateSubscriptionFields(input PermissionInput) error {
	present := 0
	for _, field := range []*string{input.Endpoint, input.P256dh, input.Auth} {
		if field != nil && *field != "" {
			present++
		}
	}
	if present != 0 && present != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation,
			"endpoint, p256dh and auth must all be provided together")
	}
	return nil
}

// SendInput targets a restaurant's grantees. A nil CustomerIDs broadcasts to
// every grantee; a present-but-empty list is rejected.
type SendInput struct {
	RestaurantID uuid.UUID       `json:"restaurantId"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	Data         json.RawMessage `json:"data,omitempty"`
	CustomerIDs  *[]uuid.UUID    `json:"customerIds,omitempty"`
}

// SendResult summarizes one delivery fan-out.
type SendResult struct {
	Sent   int         `json:"sent"`
	Failed int         `json:"failed"`
	Errors []SendError `json:"errors,omitempty"`
}

// SendError names the customer whose delivery failed and why.
type SendError struct {
	CustomerID uuid.UUID `json:"customerId"`
	Reason     string    `json:"reason"`
}

func (s *service) SendToRestaurant(ctx context.Context, input SendInput) (*SendResult, error) {
	if s.sender == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, push.ErrNotConfigured,
			"push provider not configured")
	}
	if input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.Body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "body required")
	}
	if input.CustomerIDs != nil && len(*input.CustomerIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customerIds must not be empty when provided")
	}

	grantees, err := s.repo.ListGrantees(ctx, input.RestaurantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notification grantees")
	}

	payload, err := json.Marshal(map[string]any{
		"title": input.Title,
		"body":  input.Body,
		"data":  input.Data,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode push payload")
	}

	targets, result := selectTargets(grantees, input.CustomerIDs)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrentSends)
	)
	for _, target := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(target pushTarget) {
			defer wg.Done()
			defer func() { <-sem }()

			sendErr := s.sender.Send(ctx, target.sub, payload)

			mu.Lock()
			defer mu.Unlock()
			if sendErr == nil {
				result.Sent++
				s.metrics.IncPushSent()
				return
			}
			result.Failed++
			s.metrics.IncPushFailed()
			result.Errors = append(result.Errors, SendError{
				CustomerID: target.customerID,
				Reason:     sendErr.Error(),
			})

			if errors.Is(sendErr, push.ErrSubscriptionGone) {
				s.pruneSubscription(ctx, target.customerID, input.RestaurantID)
			}
		}(target)
	}
	wg.Wait()

	return result, nil
}

type pushTarget struct {
	customerID uuid.UUID
	sub        push.Subscription
}

// selectTargets intersects the grantees with the optional explicit customer
// list, then filters to rows that carry a subscription. Listed customers
// without a grant or subscription are skipped silently: they can never
// receive push, so they are not delivery failures.
func selectTargets(grantees []models.NotificationPermission, customerIDs *[]uuid.UUID) ([]pushTarget, *SendResult) {
	result := &SendResult{}

	var listed map[uuid.UUID]bool
	if customerIDs != nil {
		listed = make(map[uuid.UUID]bool, len(*customerIDs))
		for _, id := range *customerIDs {
			listed[id] = true
		}
	}

	var targets []pushTarget
	for _, g := range grantees {
		if listed != nil && !listed[g.CustomerID] {
			continue
		}
		if !g.HasSubscription() {
			continue
		}
		targets = append(targets, pushTarget{
			customerID: g.CustomerID,
			sub:        push.Subscription{Endpoint: *g.Endpoint, P256dh: *g.P256dh, Auth: *g.Auth},
		})
	}
	return targets, result
}

// pruneSubscription clears a dead endpoint. Idempotent: repeated prunes for
// the same pair are harmless, and the permission row itself survives.
func (s *service) pruneSubscription(ctx context.Context, customerID, restaurantID uuid.UUID) {
	if err := s.repo.ClearSubscription(ctx, customerID, restaurantID); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "failed to prune dead push subscription", err)
		}
		return
	}
	s.metrics.IncPushPruned()
	if s.logg != nil {
		s.logg.Info(s.logg.WithCustomerID(ctx, customerID.String()), "pruned dead push subscription")
	}
}
