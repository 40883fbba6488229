package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/moderation"
	"github.com/freshlane/realtime-go/internal/rest"
	"github.com/freshlane/realtime-go/internal/transport"
)

// Subscription is a live attachment to the fallback source that can be
// released.
type Subscription interface {
	Close()
}

// Fallback is the change-feed source used when the primary transport cannot
// carry traffic, and as a safety-net subscription even when it can.
type Fallback interface {
	Write(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID int64) error
	Subscribe(conversationID int64, fn func([]model.Message)) Subscription
}

// Deliverer is one way of getting a message onto the wire. The two
// implementations share the dedup guarantees enforced in Channel.Send, so
// path selection never changes observable semantics.
type Deliverer interface {
	Deliver(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

// transportDeliverer emits over the gateway. Fire-and-forget: the resulting
// record arrives back as a message:new event, so callers must not append
// optimistically on this path.
type transportDeliverer struct {
	client *transport.Client
}

func (d transportDeliverer) Deliver(_ context.Context, params model.CreateMessageParams) (*model.Message, error) {
	err := d.client.Emit(transport.EventMessageSend, transport.MessageSendPayload{
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		SenderType:     params.SenderRole,
		Message:        params.Body,
	})
	return nil, err
}

// feedDeliverer writes through the backend and returns the authoritative
// record, which the channel appends locally.
type feedDeliverer struct {
	fallback Fallback
}

func (d feedDeliverer) Deliver(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	return d.fallback.Write(ctx, params)
}

type conversationState struct {
	messages []model.Message
	seen     map[int64]struct{}
}

type activeSubscription struct {
	conversationID int64
	feedSub        Subscription
	fn             func([]model.Message)
}

// Channel sends and receives chat messages over whichever path is live.
// Duplicate rapid sends collapse onto one network operation, and inbound
// messages are dedup'd by id because both delivery paths can observe the same
// underlying write.
type Channel struct {
	client     *transport.Client
	fallback   Fallback
	api        rest.Client
	moderation *moderation.Service
	guard      *sendGuard

	mu            sync.Mutex
	conversations map[int64]*conversationState
	active        *activeSubscription
}

func NewChannel(client *transport.Client, fallback Fallback, api rest.Client, mod *moderation.Service, dedupWindow time.Duration) *Channel {
	c := &Channel{
		client:        client,
		fallback:      fallback,
		api:           api,
		moderation:    mod,
		guard:         newSendGuard(dedupWindow),
		conversations: make(map[int64]*conversationState),
	}

	client.On(transport.EventMessageNew, func(data json.RawMessage) {
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("discarding malformed inbound message")
			return
		}
		c.receive(msg)
	})

	return c
}

// Send delivers one chat message. Identical sends (same conversation, sender
// and normalized body) inside the dedup window share a single network
// operation and a single result.
func (c *Channel) Send(ctx context.Context, conversationID int64, senderID *int64, role model.SenderRole, body string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.MissingRequired("message body")
	}

	if senderID != nil && c.moderation != nil {
		identifier := fmt.Sprintf("user:%d", *senderID)
		blocked, err := c.moderation.IsBlocked(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if blocked {
			if err := c.moderation.LogAttempt(ctx, identifier, &conversationID, body); err != nil {
				log.Warn().Err(err).Str("identifier", identifier).Msg("failed to log blocked attempt")
			}
			return nil, apperrors.ParticipantBlocked(identifier)
		}
	}

	key := newFingerprintKey(conversationID, senderID, role)
	normalized := NormalizeBody(body)

	pending, owner := c.guard.claim(key, normalized)
	if !owner {
		log.Debug().Int64("conversationId", conversationID).Msg("duplicate send coalesced")
		<-pending.done
		return pending.msg, pending.err
	}

	msg, err := c.deliverer().Deliver(ctx, model.CreateMessageParams{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     role,
		Body:           body,
	})
	if err == nil && msg != nil {
		// Feed path: append the authoritative record locally. The transport
		// path leaves msg nil and state is populated by message:new instead.
		c.receive(*msg)
	}

	c.guard.finish(pending, msg, err)
	return msg, err
}

func (c *Channel) deliverer() Deliverer {
	if c.client.Ready() {
		return transportDeliverer{client: c.client}
	}
	return feedDeliverer{fallback: c.fallback}
}

// receive appends the message unless its id has already been observed, then
// notifies the active subscriber. Safe against double delivery across paths.
func (c *Channel) receive(msg model.Message) {
	c.mu.Lock()
	state := c.state(msg.ConversationID)
	if _, dup := state.seen[msg.ID]; dup {
		c.mu.Unlock()
		return
	}
	state.seen[msg.ID] = struct{}{}
	state.messages = append(state.messages, msg)

	var notify func([]model.Message)
	if c.active != nil && c.active.conversationID == msg.ConversationID {
		notify = c.active.fn
	}
	c.mu.Unlock()

	if notify != nil {
		notify([]model.Message{msg})
	}
}

// state must be called with c.mu held.
func (c *Channel) state(conversationID int64) *conversationState {
	s, ok := c.conversations[conversationID]
	if !ok {
		s = &conversationState{seen: make(map[int64]struct{})}
		c.conversations[conversationID] = s
	}
	return s
}

// LoadHistory seeds local state from the non-realtime source of truth before
// the live channel takes over. Already-seen ids are skipped.
func (c *Channel) LoadHistory(ctx context.Context, conversationID int64, limit int) error {
	msgs, err := c.api.Messages(ctx, conversationID, limit)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		c.receive(msg)
	}
	return nil
}

// GetMessages returns up to limit messages ordered by timestamp ascending.
// Read-only; repeated calls have no side effects.
func (c *Channel) GetMessages(conversationID int64, limit int) []model.Message {
	c.mu.Lock()
	state, ok := c.conversations[conversationID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	msgs := append([]model.Message(nil), state.messages...)
	c.mu.Unlock()

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// Subscribe attaches the consumer to one conversation. The change feed is
// subscribed as a safety net even while the transport is healthy; switching
// conversations releases the previous subscription first.
func (c *Channel) Subscribe(conversationID int64, fn func([]model.Message)) {
	c.mu.Lock()
	if c.active != nil {
		if c.active.feedSub != nil {
			c.active.feedSub.Close()
		}
		c.active = nil
	}

	sub := &activeSubscription{
		conversationID: conversationID,
		fn:             fn,
	}
	c.active = sub
	c.mu.Unlock()

	feedSub := c.fallback.Subscribe(conversationID, func(batch []model.Message) {
		c.ingestBatch(sub, batch)
	})

	c.mu.Lock()
	if c.active == sub {
		sub.feedSub = feedSub
		c.mu.Unlock()
		return
	}
	// Superseded while subscribing; release immediately.
	c.mu.Unlock()
	feedSub.Close()
}

func (c *Channel) ingestBatch(sub *activeSubscription, batch []model.Message) {
	c.mu.Lock()
	if c.active != sub {
		// A batch from a stale subscription must not reach the consumer.
		c.mu.Unlock()
		return
	}

	state := c.state(sub.conversationID)
	var fresh []model.Message
	for _, msg := range batch {
		if _, dup := state.seen[msg.ID]; dup {
			continue
		}
		state.seen[msg.ID] = struct{}{}
		state.messages = append(state.messages, msg)
		fresh = append(fresh, msg)
	}
	fn := sub.fn
	c.mu.Unlock()

	if len(fresh) > 0 {
		fn(fresh)
	}
}

// Unsubscribe fully releases the active subscription. Safe when idle.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	sub := c.active
	c.active = nil
	c.mu.Unlock()

	if sub != nil && sub.feedSub != nil {
		sub.feedSub.Close()
	}
}

// MarkRead flags the conversation as read over whichever path is live.
func (c *Channel) MarkRead(ctx context.Context, conversationID int64) error {
	if c.client.Ready() {
		return c.client.Emit(transport.EventMessagesMarkRead, transport.MarkReadPayload{
			ConversationID: conversationID,
		})
	}
	return c.fallback.MarkRead(ctx, conversationID)
}
