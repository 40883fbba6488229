package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/rest"
)

// WelcomeMessage is the bot-authored first message of every new conversation.
const WelcomeMessage = "Hi! How can we help you today?"

type directoryCall struct {
	done chan struct{}
	conv *model.Conversation
	err  error
}

// Directory resolves the single active conversation for a participant,
// creating one on first contact. Lookups are cached for a short window and
// concurrent calls for the same customer coalesce onto one request, so two
// rapid calls can never race to create two active conversations.
type Directory struct {
	api   rest.Client
	cache *DirectoryCache

	mu       sync.Mutex
	inflight map[int64]*directoryCall
}

func NewDirectory(api rest.Client, cacheTTL time.Duration) *Directory {
	return &Directory{
		api:      api,
		cache:    NewDirectoryCache(cacheTTL),
		inflight: make(map[int64]*directoryCall),
	}
}

// GetOrCreate returns the customer's active conversation, creating it when
// none exists. Anonymous participants (nil customerID) always get a fresh
// conversation since there is no identity to look up.
func (d *Directory) GetOrCreate(ctx context.Context, customerID *int64, displayName string) (*model.Conversation, error) {
	if displayName == "" {
		return nil, apperrors.MissingRequired("displayName")
	}
	if customerID == nil {
		return d.create(ctx, nil, displayName)
	}
	id := *customerID

	if conv, ok := d.cache.Get(id); ok {
		return conv, nil
	}

	d.mu.Lock()
	if call, ok := d.inflight[id]; ok {
		d.mu.Unlock()
		<-call.done
		return call.conv, call.err
	}
	call := &directoryCall{done: make(chan struct{})}
	d.inflight[id] = call
	d.mu.Unlock()

	conv, err := d.resolve(ctx, id, displayName)

	call.conv = conv
	call.err = err
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
	close(call.done)

	return conv, err
}

func (d *Directory) resolve(ctx context.Context, customerID int64, displayName string) (*model.Conversation, error) {
	conv, err := d.api.ActiveConversationByCustomer(ctx, customerID)
	if err == nil {
		d.cache.Set(customerID, conv)
		return conv, nil
	}
	if apperrors.GetCode(err) != apperrors.ErrCodeNotFound {
		return nil, err
	}
	return d.create(ctx, &customerID, displayName)
}

func (d *Directory) create(ctx context.Context, customerID *int64, displayName string) (*model.Conversation, error) {
	conv, err := d.api.CreateConversation(ctx, model.CreateConversationParams{
		CustomerID:   customerID,
		CustomerName: displayName,
	})
	if err != nil {
		return nil, err
	}

	if customerID != nil {
		// A cached "not found" must never shadow the conversation just created.
		d.cache.Invalidate(*customerID)
	}

	if _, err := d.api.PostMessage(ctx, model.CreateMessageParams{
		ConversationID: conv.ID,
		SenderRole:     model.SenderRoleBot,
		Body:           WelcomeMessage,
	}); err != nil {
		// The conversation exists; a missing greeting is not worth failing over.
		log.Warn().Err(err).Int64("conversationId", conv.ID).Msg("failed to post welcome message")
	}

	if customerID != nil {
		d.cache.Set(*customerID, conv)
	}

	log.Info().
		Int64("conversationId", conv.ID).
		Str("customerName", displayName).
		Msg("conversation created")

	return conv, nil
}
