package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/model"
	redisclient "github.com/freshlane/realtime-go/internal/redis"
	"github.com/freshlane/realtime-go/internal/repository"
	"github.com/freshlane/realtime-go/internal/transport"
)

// Event is the envelope published on the change feed.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Conn is the slice of the redis client the feed uses.
type Conn interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Feed is the fallback realtime source: an append-only change feed over the
// managed backend database, filtered by conversation. It carries the same
// Message shape as the primary transport so consumers can dedup across both.
type Feed struct {
	conn     Conn
	messages repository.MessageRepository
	debounce time.Duration
}

func New(conn Conn, messages repository.MessageRepository, debounce time.Duration) *Feed {
	return &Feed{
		conn:     conn,
		messages: messages,
		debounce: debounce,
	}
}

// Write persists the message through the backend and publishes the resulting
// change event. Used when the primary transport is permanently unavailable;
// returns the authoritative record for local append.
func (f *Feed) Write(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	msg, err := f.messages.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	event := Event{Type: transport.EventMessageNew, Data: msg.ToFeedEventData()}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.Internal("failed to encode feed event").WithCause(err)
	}

	channel := redisclient.ConversationChannel(params.ConversationID)
	if err := f.conn.Publish(ctx, channel, data).Err(); err != nil {
		// The write is durable; only live delivery degraded.
		log.Warn().Err(err).Str("channel", channel).Msg("feed publish failed")
	}

	log.Debug().
		Int64("messageId", msg.ID).
		Int64("conversationId", msg.ConversationID).
		Msg("message written through change feed")

	return msg, nil
}

// MarkRead flags the conversation's unread messages directly in the backend.
// Fallback path for the read-receipt operation when the transport is down.
func (f *Feed) MarkRead(ctx context.Context, conversationID int64) error {
	if err := f.messages.MarkRead(ctx, conversationID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// Subscription is one live attachment to a conversation's change feed.
type Subscription struct {
	ConversationID int64

	pubsub    *redis.PubSub
	debouncer *Debouncer
	cancel    context.CancelFunc
}

// Subscribe attaches to the conversation's change feed. Inbound messages are
// debounced before fn is invoked. Close releases the underlying channel.
func (f *Feed) Subscribe(conversationID int64, fn func([]model.Message)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	channel := redisclient.ConversationChannel(conversationID)
	pubsub := f.conn.Subscribe(ctx, channel)

	sub := &Subscription{
		ConversationID: conversationID,
		pubsub:         pubsub,
		debouncer:      NewDebouncer(f.debounce, fn),
		cancel:         cancel,
	}

	go sub.run(ctx)

	log.Debug().
		Int64("conversationId", conversationID).
		Str("channel", channel).
		Msg("change feed subscribed")

	return sub
}

func (s *Subscription) run(ctx context.Context) {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(raw.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("discarding malformed feed event")
				continue
			}
			if event.Type != transport.EventMessageNew {
				continue
			}

			var msg model.Message
			if err := json.Unmarshal(event.Data, &msg); err != nil {
				log.Warn().Err(err).Msg("discarding malformed feed message")
				continue
			}
			s.debouncer.Add(msg)
		}
	}
}

// Close fully releases the subscription: pending deliveries are dropped and
// the underlying pubsub channel is closed.
func (s *Subscription) Close() {
	s.cancel()
	s.debouncer.Stop()
	if err := s.pubsub.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close feed subscription")
	}

	log.Debug().Int64("conversationId", s.ConversationID).Msg("change feed unsubscribed")
}
