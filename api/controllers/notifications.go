package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/api/responses"
	"github.com/tablepoints/tablepoints-backend/api/validators"
	"github.com/tablepoints/tablepoints-backend/internal/notifications"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

type permissionUpsertRequest struct {
	CustomerID        uuid.UUID  `json:"customerId" validate:"required"`
	RestaurantID      *uuid.UUID `json:"restaurantId,omitempty"`
	PermissionGranted bool       `json:"permissionGranted"`
	Endpoint          *string    `json:"endpoint,omitempty" validate:"omitempty,url"`
	P256dh            *string    `json:"p256dh,omitempty"`
	Auth              *string    `json:"auth,omitempty"`
}

// NotificationPermissionUpsert stores a member's notification opt-in and push
// subscription for one restaurant. Repeat calls for the same pair update in
// place.
func NotificationPermissionUpsert(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}

		var payload permissionUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restaurantID, err := resolveRestaurantID(r, payload.RestaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpsertPermission(r.Context(), notifications.PermissionInput{
			CustomerID:        payload.CustomerID,
			RestaurantID:      restaurantID,
			PermissionGranted: payload.PermissionGranted,
			Endpoint:          payload.Endpoint,
			P256dh:            payload.P256dh,
			Auth:              payload.Auth,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type notificationSendRequest struct {
	RestaurantID *uuid.UUID      `json:"restaurantId,omitempty"`
	Title        string          `json:"title" validate:"required,min=1,max=200"`
	Body         string          `json:"body" validate:"required,min=1,max=1000"`
	Data         json.RawMessage `json:"data,omitempty"`
	CustomerIDs  *[]uuid.UUID    `json:"customerIds,omitempty"`
}

// NotificationSend pushes a message to a restaurant's opted-in members.
func NotificationSend(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}

		var payload notificationSendRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restaurantID, err := resolveRestaurantID(r, payload.RestaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SendToRestaurant(r.Context(), notifications.SendInput{
			RestaurantID: restaurantID,
			Title:        payload.Title,
			Body:         payload.Body,
			Data:         payload.Data,
			CustomerIDs:  payload.CustomerIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
