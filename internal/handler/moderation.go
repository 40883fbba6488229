package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/httputil"
	"github.com/freshlane/realtime-go/internal/moderation"
)

// ModerationHandler exposes the block/unblock surface to the ops console.
type ModerationHandler struct {
	service *moderation.Service
}

func NewModerationHandler(service *moderation.Service) *ModerationHandler {
	return &ModerationHandler{service: service}
}

func (h *ModerationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/block", h.Block)
	r.Post("/unblock", h.Unblock)
	r.Get("/{identifier}/status", h.Status)
	r.Get("/{identifier}/history", h.History)
	r.Get("/{identifier}/attempts", h.Attempts)

	return r
}

type blockRequest struct {
	Identifier string  `json:"identifier"`
	Reason     *string `json:"reason,omitempty"`
}

// POST /moderation/block
func (h *ModerationHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	entity, err := h.service.Block(r.Context(), req.Identifier, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entity)
}

// POST /moderation/unblock
func (h *ModerationHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.service.Unblock(r.Context(), req.Identifier); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /moderation/{identifier}/status
func (h *ModerationHandler) Status(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	blocked, err := h.service.IsBlocked(r.Context(), identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}

// GET /moderation/{identifier}/history
func (h *ModerationHandler) History(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	entities, err := h.service.History(r.Context(), identifier, h.limit(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": entities})
}

// GET /moderation/{identifier}/attempts
func (h *ModerationHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	attempts, err := h.service.Attempts(r.Context(), identifier, h.limit(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *ModerationHandler) limit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
