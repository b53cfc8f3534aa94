package middleware

import "context"

type contextKey string

const (
	ctxStaffID      contextKey = "staff_id"
	ctxRole         contextKey = "staff_role"
	ctxRestaurantID contextKey = "restaurant_id"
)

func StaffIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxStaffID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// RestaurantIDFromContext returns the tenant scope of the authenticated staff
// member, or "" for platform admins.
func RestaurantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRestaurantID).(string); ok {
		return v
	}
	return ""
}

// WithStaffID injects the staff identifier into the context.
func WithStaffID(ctx context.Context, staffID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxStaffID, staffID)
}

// WithRestaurantID injects the tenant scope into the context for downstream handlers.
func WithRestaurantID(ctx context.Context, restaurantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRestaurantID, restaurantID)
}
