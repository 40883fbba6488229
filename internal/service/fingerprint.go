package service

import (
	"strings"
	"sync"
	"time"

	"github.com/freshlane/realtime-go/internal/model"
)

// fingerprintKey identifies a logical send independent of retries. Automated
// senders have no id and share the zero key slot per conversation and role.
type fingerprintKey struct {
	conversationID int64
	senderRole     model.SenderRole
	senderID       int64
}

func newFingerprintKey(conversationID int64, senderID *int64, role model.SenderRole) fingerprintKey {
	key := fingerprintKey{conversationID: conversationID, senderRole: role}
	if senderID != nil {
		key.senderID = *senderID
	}
	return key
}

// NormalizeBody canonicalizes a message body for duplicate detection: leading
// and trailing whitespace dropped, internal runs collapsed, case folded.
func NormalizeBody(body string) string {
	return strings.ToLower(strings.Join(strings.Fields(body), " "))
}

// pendingSend is the shared result of one network operation. Every caller
// coalesced onto it waits on done and reads the same outcome.
type pendingSend struct {
	normalized string
	at         time.Time
	done       chan struct{}

	msg *model.Message
	err error
}

// sendGuard collapses near-identical rapid sends: same fingerprint key and
// normalized body inside the coalescing window share one network operation.
type sendGuard struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	sends map[fingerprintKey]*pendingSend
}

func newSendGuard(window time.Duration) *sendGuard {
	return &sendGuard{
		window: window,
		now:    time.Now,
		sends:  make(map[fingerprintKey]*pendingSend),
	}
}

// claim either returns an equivalent in-flight or recent send (owner=false),
// or registers a fresh one the caller is responsible for completing.
func (g *sendGuard) claim(key fingerprintKey, normalized string) (p *pendingSend, owner bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.sends[key]; ok &&
		existing.normalized == normalized &&
		g.now().Sub(existing.at) < g.window {
		return existing, false
	}

	p = &pendingSend{
		normalized: normalized,
		at:         g.now(),
		done:       make(chan struct{}),
	}
	g.sends[key] = p
	return p, true
}

// finish records the outcome and releases every coalesced waiter.
func (g *sendGuard) finish(p *pendingSend, msg *model.Message, err error) {
	p.msg = msg
	p.err = err
	close(p.done)
}
