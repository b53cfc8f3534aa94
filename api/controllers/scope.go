package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/api/middleware"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
)

// restaurantScope returns the authenticated tenant, or nil for platform
// admins who operate across restaurants.
func restaurantScope(r *http.Request) *uuid.UUID {
	raw := middleware.RestaurantIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// resolveRestaurantID picks the tenant a write applies to. Scoped staff may
// only act on their own restaurant; admins must name one explicitly.
func resolveRestaurantID(r *http.Request, requested *uuid.UUID) (uuid.UUID, error) {
	scope := restaurantScope(r)
	if scope != nil {
		if requested != nil && *requested != *scope {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant scope mismatch")
		}
		return *scope, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurantId required")
	}
	return *requested, nil
}

// resolveOptionalRestaurantID is resolveRestaurantID for operations that also
// accept no tenant at all, such as registering a customer with no home
// restaurant. Scoped staff still cannot escape their own restaurant.
func resolveOptionalRestaurantID(r *http.Request, requested *uuid.UUID) (*uuid.UUID, error) {
	scope := restaurantScope(r)
	if scope != nil {
		if requested != nil && *requested != *scope {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant scope mismatch")
		}
		return scope, nil
	}
	if requested != nil && *requested == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurantId must not be the zero id")
	}
	return requested, nil
}

func staffRef(r *http.Request) *string {
	if staffID := middleware.StaffIDFromContext(r.Context()); staffID != "" {
		return &staffID
	}
	return nil
}
