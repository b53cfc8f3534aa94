package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/api/responses"
	"github.com/tablepoints/tablepoints-backend/api/validators"
	"github.com/tablepoints/tablepoints-backend/internal/customers"
	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
	"github.com/tablepoints/tablepoints-backend/pkg/pagination"
)

type customerRegisterRequest struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email        string     `json:"email" validate:"required,email"`
	Phone        *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	DateOfBirth  *string    `json:"dateOfBirth,omitempty"`
	RestaurantID *uuid.UUID `json:"restaurantId,omitempty"`
}

// CustomerRegister creates a loyalty member and their REGISTRATION entry.
func CustomerRegister(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		var payload customerRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restaurantID, err := resolveOptionalRestaurantID(r, payload.RestaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var dob *time.Time
		if payload.DateOfBirth != nil && *payload.DateOfBirth != "" {
			parsed, parseErr := time.Parse("2006-01-02", *payload.DateOfBirth)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "dateOfBirth must be YYYY-MM-DD"))
				return
			}
			dob = &parsed
		}

		result, err := svc.Register(r.Context(), customers.RegisterInput{
			Name:         payload.Name,
			Email:        payload.Email,
			Phone:        payload.Phone,
			DateOfBirth:  dob,
			RestaurantID: restaurantID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CustomerSearch resolves a single member by email, member code or phone
// number within the caller's restaurant scope. No match is a 404.
func CustomerSearch(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		scope := restaurantScope(r)
		if raw := r.URL.Query().Get("restaurantId"); raw != "" {
			requested, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid restaurant id"))
				return
			}
			if scope != nil && *scope != requested {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "restaurant scope mismatch"))
				return
			}
			scope = &requested
		}

		query := validators.SanitizeString(r.URL.Query().Get("q"), 200)
		customer, err := svc.Search(r.Context(), scope, query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, customer)
	}
}

// CustomerGet returns a single member profile.
func CustomerGet(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "customerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}

		customer, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, customer)
	}
}

// CustomerDelete soft-deletes a member. Their ledger entries are kept.
func CustomerDelete(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "customerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// CustomerBalance returns the member's current point balance.
func CustomerBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "customerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}

		balance, err := svc.CurrentBalance(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"customerId": id,
			"balance":    balance,
		})
	}
}

// CustomerTransactions pages the member's ledger history, newest first.
func CustomerTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "customerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", pagination.DefaultPage, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := validators.ParseQueryInt(r, "pageSize", pagination.DefaultPageSize, 1, pagination.MaxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), id, pagination.Params{Page: page, PageSize: pageSize})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, history)
	}
}
