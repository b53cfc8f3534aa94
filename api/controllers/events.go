package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/api/responses"
	"github.com/tablepoints/tablepoints-backend/internal/realtime"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

const heartbeatInterval = 15 * time.Second

// EventStream is the subscription surface the SSE endpoint needs.
type EventStream interface {
	Subscribe(restaurantID uuid.UUID) *realtime.Subscriber
	Unsubscribe(restaurantID uuid.UUID, sub *realtime.Subscriber)
}

// RestaurantEvents streams the restaurant's ledger events over SSE. Delivery
// is best-effort: a client that reconnects resumes from now, not from where
// it left off.
func RestaurantEvents(hub EventStream, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event stream unavailable"))
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

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := hub.Subscribe(restaurantID)
		defer hub.Unsubscribe(restaurantID, sub)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			case event, open := <-sub.Events():
				if !open {
					return
				}
				data, marshalErr := json.Marshal(event)
				if marshalErr != nil {
					if logg != nil {
						logg.Error(r.Context(), "encode stream event", marshalErr)
					}
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
				flusher.Flush()
			}
		}
	}
}
