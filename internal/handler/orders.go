package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/httputil"
	"github.com/freshlane/realtime-go/internal/session"
	"github.com/freshlane/realtime-go/internal/transport"
)

// OrdersHandler lets a customer follow their order's delivery in realtime.
// The tracked order is remembered so the subscription survives reconnects.
type OrdersHandler struct {
	recovery *session.Recovery
	client   *transport.Client
}

func NewOrdersHandler(recovery *session.Recovery, client *transport.Client) *OrdersHandler {
	return &OrdersHandler{recovery: recovery, client: client}
}

func (h *OrdersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}/track", h.Track)
	r.Post("/{id}/untrack", h.Untrack)

	return r
}

type trackRequest struct {
	UserID int64 `json:"userId"`
}

// POST /orders/{id}/track
func (h *OrdersHandler) Track(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.UserID == 0 {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}

	// Remember first: a failed announcement is replayed on the next connect.
	h.recovery.RememberOrder(orderID, req.UserID)
	if err := h.client.Emit(transport.EventOrderTrack, transport.OrderTrackPayload{
		OrderID: orderID,
		UserID:  req.UserID,
	}); err != nil {
		log.Debug().Err(err).Str("orderId", orderID).Msg("order tracking not announced over transport")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "tracking"})
}

// POST /orders/{id}/untrack
func (h *OrdersHandler) Untrack(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	state := h.recovery.Snapshot()
	h.recovery.ForgetOrder()

	if state.TrackedOrderID != nil && state.TrackingUserID != nil {
		if err := h.client.Emit(transport.EventOrderUntrack, transport.OrderTrackPayload{
			OrderID: orderID,
			UserID:  *state.TrackingUserID,
		}); err != nil {
			log.Debug().Err(err).Str("orderId", orderID).Msg("order untrack not announced over transport")
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
