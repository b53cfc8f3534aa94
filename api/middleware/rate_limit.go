package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tablepoints/tablepoints-backend/api/responses"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

// RateLimiterStore is the subset of the redis client the limiter needs.
type RateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// NotifyRateLimit throttles push fan-outs per restaurant. A burst of sends to
// the same member base is almost always an operator mistake or a runaway
// client, not a real campaign.
func NotifyRateLimit(cfg config.RateLimitConfig, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.NotifyLimit <= 0 || cfg.NotifyWindow <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := RestaurantIDFromContext(ctx)
			if scope == "" {
				scope = StaffIDFromContext(ctx)
			}
			if scope == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := store.RateLimitKey(fmt.Sprintf("notify:%s", scope))
			count, err := store.IncrWithTTL(ctx, key, cfg.NotifyWindow)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > cfg.NotifyLimit {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"attempts":       count,
						"limit":          cfg.NotifyLimit,
						"window_seconds": int(cfg.NotifyWindow.Seconds()),
					})
					logg.Warn(logCtx, "notify.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "notification rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
