package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/transport"
)

// State is the set of remembered roles that must be re-announced after a
// reconnection. It survives connection drops and is cleared only by an
// explicit disconnect.
type State struct {
	ConversationID  *int64
	ParticipantName string
	TrackedOrderID  *string
	TrackingUserID  *int64
	DriverID        *string
	DriverUserID    *int64
}

// Recovery remembers what this client was doing and replays the matching join
// operations after every reconnection. It is the only component allowed to
// mutate the remembered state.
type Recovery struct {
	client *transport.Client

	mu    sync.Mutex
	state State
}

func NewRecovery(client *transport.Client) *Recovery {
	r := &Recovery{client: client}
	client.SetConnectHook(r.Replay)
	client.SetDisconnectHook(r.Clear)
	return r
}

// RememberConversation records the joined conversation so it can be rejoined
// with the same id. Replay never creates a new conversation.
func (r *Recovery) RememberConversation(conversationID int64, participantName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ConversationID = &conversationID
	r.state.ParticipantName = participantName
}

func (r *Recovery) ForgetConversation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ConversationID = nil
	r.state.ParticipantName = ""
}

func (r *Recovery) RememberOrder(orderID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.TrackedOrderID = &orderID
	r.state.TrackingUserID = &userID
}

func (r *Recovery) ForgetOrder() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.TrackedOrderID = nil
	r.state.TrackingUserID = nil
}

func (r *Recovery) RememberDriver(driverID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.DriverID = &driverID
	r.state.DriverUserID = &userID
}

func (r *Recovery) ForgetDriver() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.DriverID = nil
	r.state.DriverUserID = nil
}

// Clear drops all remembered roles.
func (r *Recovery) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{}
}

// Snapshot returns a copy of the remembered state.
func (r *Recovery) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Replay re-sends the join operations for every non-nil role, in a fixed
// order: conversation, then order tracking, then driver identity. The driver
// announcement goes last so a dispatch consumer never observes a driver role
// without its identity already joined.
func (r *Recovery) Replay() {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state.ConversationID != nil {
		if err := r.client.Emit(transport.EventCustomerJoin, transport.CustomerJoinPayload{
			ConversationID: *state.ConversationID,
			CustomerName:   state.ParticipantName,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to rejoin conversation")
		}
	}

	if state.TrackedOrderID != nil && state.TrackingUserID != nil {
		if err := r.client.Emit(transport.EventOrderTrack, transport.OrderTrackPayload{
			OrderID: *state.TrackedOrderID,
			UserID:  *state.TrackingUserID,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to resume order tracking")
		}
	}

	if state.DriverID != nil && state.DriverUserID != nil {
		if err := r.client.Emit(transport.EventDriverJoin, transport.DriverJoinPayload{
			DriverID: *state.DriverID,
			UserID:   *state.DriverUserID,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to re-announce driver identity")
		}
	}
}
