package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/transport"
)

type typingSession struct {
	gen   int
	timer *time.Timer
}

// Typing emits and receives ephemeral typing signals scoped to a conversation
// and role. Nothing is persisted: outgoing signals self-stop after the idle
// window, and incoming indicators self-expire locally even when an explicit
// stop never arrives. Timers are generation-stamped so a late fire from a
// superseded session cannot affect current state.
type Typing struct {
	client *transport.Client
	idle   time.Duration

	mu       sync.Mutex
	sessions map[int64]*typingSession
	gen      int
}

func NewTyping(client *transport.Client, idle time.Duration) *Typing {
	return &Typing{
		client:   client,
		idle:     idle,
		sessions: make(map[int64]*typingSession),
	}
}

// Keystroke signals typing activity. The first call per conversation emits
// typing:start; subsequent calls only extend the idle timer, so continuous
// typing never produces stop/start churn.
func (t *Typing) Keystroke(conversationID int64, role model.SenderRole, name *string) {
	t.mu.Lock()

	sess, ok := t.sessions[conversationID]
	if !ok {
		sess = &typingSession{}
		t.sessions[conversationID] = sess

		if err := t.client.Emit(transport.EventTypingStart, transport.TypingPayload{
			ConversationID: conversationID,
			UserType:       role,
			UserName:       name,
		}); err != nil {
			log.Debug().Err(err).Msg("typing start not delivered")
		}
	} else {
		sess.timer.Stop()
	}

	// Re-arming invalidates any timer that already fired and is waiting on the
	// mutex; expire compares generations and drops the late stop.
	t.gen++
	sess.gen = t.gen
	gen := sess.gen
	sess.timer = time.AfterFunc(t.idle, func() {
		t.expire(conversationID, gen, role, name)
	})
	t.mu.Unlock()
}

func (t *Typing) expire(conversationID int64, gen int, role model.SenderRole, name *string) {
	t.mu.Lock()
	sess, ok := t.sessions[conversationID]
	if !ok || sess.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, conversationID)
	t.mu.Unlock()

	t.emitStop(conversationID, role, name)
}

// Stop ends the typing session immediately. Safe when no session is active.
func (t *Typing) Stop(conversationID int64, role model.SenderRole, name *string) {
	t.mu.Lock()
	sess, ok := t.sessions[conversationID]
	if ok {
		sess.timer.Stop()
		delete(t.sessions, conversationID)
	}
	t.mu.Unlock()

	if ok {
		t.emitStop(conversationID, role, name)
	}
}

func (t *Typing) emitStop(conversationID int64, role model.SenderRole, name *string) {
	if err := t.client.Emit(transport.EventTypingStop, transport.TypingPayload{
		ConversationID: conversationID,
		UserType:       role,
		UserName:       name,
	}); err != nil {
		log.Debug().Err(err).Msg("typing stop not delivered")
	}
}

// OnIndicator subscribes to inbound typing signals from one role; signals for
// every other role are filtered out before reaching fn. A received "typing"
// indicator expires locally after the idle window when no stop follows it.
// The returned id releases the subscription via OffIndicator.
func (t *Typing) OnIndicator(role model.SenderRole, fn func(isTyping bool)) int {
	var mu sync.Mutex
	var gen int
	var timer *time.Timer

	return t.client.On(transport.EventTypingIndicator, func(data json.RawMessage) {
		var p transport.TypingIndicatorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Msg("discarding malformed typing indicator")
			return
		}
		if p.UserType != role {
			return
		}

		mu.Lock()
		gen++
		current := gen
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		if p.IsTyping {
			timer = time.AfterFunc(t.idle, func() {
				mu.Lock()
				if current != gen {
					mu.Unlock()
					return
				}
				gen++
				mu.Unlock()
				fn(false)
			})
		}
		mu.Unlock()

		fn(p.IsTyping)
	})
}

func (t *Typing) OffIndicator(id int) {
	t.client.Off(transport.EventTypingIndicator, id)
}
