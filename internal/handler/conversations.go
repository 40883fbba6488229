package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/httputil"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/repository"
	"github.com/freshlane/realtime-go/internal/transport"
)

const defaultMessageLimit = 100

// ConversationsHandler is the ops console's conversation API: listing by
// status, reading history, and assigning agents.
type ConversationsHandler struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	client        *transport.Client
}

func NewConversationsHandler(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	client *transport.Client,
) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversations,
		messages:      messages,
		client:        client,
	}
}

func (h *ConversationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/messages", h.Messages)
	r.Post("/{id}/assign", h.Assign)

	return r
}

// GET /conversations?status=pending
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ConversationStatus(r.URL.Query().Get("status"))
	switch status {
	case model.ConversationStatusActive, model.ConversationStatusPending, model.ConversationStatusClosed:
	case "":
		status = model.ConversationStatusActive
	default:
		httputil.WriteError(w, apperrors.InvalidInput("status", "unknown status"))
		return
	}

	convs, err := h.conversations.FindByStatus(r.Context(), status)
	if err != nil {
		log.Error().Err(err).Msg("failed to list conversations")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GET /conversations/{id}
func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.conversations.FindByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("conversationId", id).Msg("failed to load conversation")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if conv == nil {
		httputil.WriteError(w, apperrors.NotFound("conversation"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, conv)
}

// GET /conversations/{id}/messages?limit=100
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, apperrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	msgs, err := h.messages.FindByConversationID(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Int64("conversationId", id).Msg("failed to load messages")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type assignRequest struct {
	AgentID   int64  `json:"agentId"`
	AgentName string `json:"agentName"`
}

// POST /conversations/{id}/assign
func (h *ConversationsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.AgentID == 0 || req.AgentName == "" {
		httputil.WriteError(w, apperrors.MissingRequired("agentId and agentName"))
		return
	}

	conv, err := h.conversations.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if conv == nil {
		httputil.WriteError(w, apperrors.NotFound("conversation"))
		return
	}
	if !conv.Open() {
		httputil.WriteError(w, apperrors.ConversationClosed(id))
		return
	}

	updated, err := h.conversations.Assign(r.Context(), model.AssignConversationParams{
		ConversationID: id,
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
	})
	if err != nil {
		log.Error().Err(err).Int64("conversationId", id).Msg("failed to assign conversation")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	// Announce the handover to live participants; best effort. The agent
	// joins the conversation room before the assignment is broadcast.
	if err := h.client.Emit(transport.EventAgentJoin, transport.AgentJoinPayload{
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
	}); err != nil {
		log.Debug().Err(err).Msg("agent join not announced over transport")
	}
	if err := h.client.Emit(transport.EventConversationAssign, transport.ConversationAssignPayload{
		ConversationID: id,
		AgentID:        req.AgentID,
		AgentName:      req.AgentName,
	}); err != nil {
		log.Debug().Err(err).Msg("assignment not announced over transport")
	}

	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *ConversationsHandler) conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
