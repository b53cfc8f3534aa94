package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/api/responses"
	"github.com/tablepoints/tablepoints-backend/api/validators"
	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/enums"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

type transactionCreateRequest struct {
	CustomerID   uuid.UUID       `json:"customerId" validate:"required"`
	RestaurantID *uuid.UUID      `json:"restaurantId,omitempty"`
	Type         string          `json:"type" validate:"required"`
	Amount       int64           `json:"amount"`
	Description  string          `json:"description" validate:"required,min=1,max=500"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// TransactionCreate appends an entry to a member's ledger.
func TransactionCreate(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload transactionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restaurantID, err := resolveRestaurantID(r, payload.RestaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txType, err := enums.ParseTransactionType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
			return
		}

		result, err := svc.Post(r.Context(), ledger.PostInput{
			CustomerID:   payload.CustomerID,
			RestaurantID: restaurantID,
			Type:         txType,
			Amount:       payload.Amount,
			Description:  payload.Description,
			Metadata:     payload.Metadata,
			CreatedBy:    staffRef(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// RestaurantFeed returns the restaurant's latest ledger activity enriched with
// member display fields.
func RestaurantFeed(svc ledger.Service, loyalty config.LoyaltyConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid restaurant id"))
			return
		}

		if scope := restaurantScope(r); scope != nil && *scope != restaurantID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant scope mismatch"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", loyalty.RestaurantFeedLimit, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.RestaurantFeed(r.Context(), restaurantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entries == nil {
			entries = []ledger.FeedEntry{}
		}

		responses.WriteSuccess(w, entries)
	}
}
