package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/httputil"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/service"
	"github.com/freshlane/realtime-go/internal/session"
	"github.com/freshlane/realtime-go/internal/transport"
)

const historySeedLimit = 50

// ChatHandler is the storefront widget's entry into the realtime layer:
// opening a conversation, sending and reading messages, typing signals.
type ChatHandler struct {
	directory *service.Directory
	channel   *service.Channel
	typing    *service.Typing
	recovery  *session.Recovery
	client    *transport.Client
}

func NewChatHandler(
	directory *service.Directory,
	channel *service.Channel,
	typing *service.Typing,
	recovery *session.Recovery,
	client *transport.Client,
) *ChatHandler {
	return &ChatHandler{
		directory: directory,
		channel:   channel,
		typing:    typing,
		recovery:  recovery,
		client:    client,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start", h.Start)
	r.Post("/{id}/messages", h.Send)
	r.Get("/{id}/messages", h.Messages)
	r.Post("/{id}/read", h.MarkRead)
	r.Post("/{id}/typing", h.Typing)

	return r
}

type startRequest struct {
	CustomerID  *int64 `json:"customerId,omitempty"`
	DisplayName string `json:"displayName"`
}

// POST /chat/start
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	conv, err := h.directory.GetOrCreate(r.Context(), req.CustomerID, req.DisplayName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.recovery.RememberConversation(conv.ID, req.DisplayName)
	if err := h.client.Emit(transport.EventCustomerJoin, transport.CustomerJoinPayload{
		ConversationID: conv.ID,
		CustomerName:   req.DisplayName,
	}); err != nil {
		log.Debug().Err(err).Msg("join not announced over transport")
	}

	if err := h.channel.LoadHistory(r.Context(), conv.ID, historySeedLimit); err != nil {
		log.Warn().Err(err).Int64("conversationId", conv.ID).Msg("failed to seed message history")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     h.channel.GetMessages(conv.ID, historySeedLimit),
	})
}

type sendRequest struct {
	SenderID   *int64           `json:"senderId,omitempty"`
	SenderRole model.SenderRole `json:"senderRole"`
	Body       string           `json:"body"`
}

// POST /chat/{id}/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	msg, err := h.channel.Send(r.Context(), id, req.SenderID, req.SenderRole, req.Body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if msg == nil {
		// Transport path: the record arrives back as a message:new event.
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

// GET /chat/{id}/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"messages": h.channel.GetMessages(id, 0),
	})
}

// POST /chat/{id}/read
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	if err := h.channel.MarkRead(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type typingRequest struct {
	Role   model.SenderRole `json:"role"`
	Name   *string          `json:"name,omitempty"`
	Typing bool             `json:"typing"`
}

// POST /chat/{id}/typing
func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if req.Typing {
		h.typing.Keystroke(id, req.Role, req.Name)
	} else {
		h.typing.Stop(id, req.Role, req.Name)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ChatHandler) conversationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
