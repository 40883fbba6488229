package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
)

type fakeConn struct {
	mu      sync.Mutex
	written []Frame
	inbound chan []byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.written = append(f.written, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeConn) writtenFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.written...)
}

// deliver pushes a raw frame as if the gateway had sent it.
func (f *fakeConn) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	require.NoError(t, err)
	f.inbound <- frame
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// flakyDialer fails or succeeds on demand, unlike fakeDialer's fixed budget.
type flakyDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
	conns []*fakeConn
}

func (d *flakyDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *flakyDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *flakyDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *flakyDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func newTestClient(d *fakeDialer) *Client {
	return NewClient("ws://gateway.test/socket", 3,
		WithDialer(d), WithRetryDelay(time.Millisecond))
}

func TestConnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer)
	defer client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Connect(context.Background()))

	assert.Equal(t, 1, dialer.dialCount())
	assert.True(t, client.Connected())
	assert.True(t, client.Ready())
}

func TestConnectRunsHookBeforeReturning(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer)
	defer client.Disconnect()

	replayed := false
	client.SetConnectHook(func() {
		replayed = true
		// The connection is usable from inside the hook.
		assert.NoError(t, client.Emit(EventCustomerJoin, CustomerJoinPayload{
			ConversationID: 12,
			CustomerName:   "maria",
		}))
	})

	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, replayed)

	frames := dialer.lastConn().writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, EventCustomerJoin, frames[0].Event)
}

func TestDisableCeiling(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	client := newTestClient(dialer)

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransportDisabled, apperrors.GetCode(err))
	assert.Equal(t, 3, dialer.dialCount())
	assert.True(t, client.Disabled())
	assert.False(t, client.Connected())

	// A disabled client never dials again.
	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, 3, dialer.dialCount())
}

func TestConnectResetsAttemptCounter(t *testing.T) {
	dialer := &fakeDialer{failures: 2}
	client := newTestClient(dialer)
	defer client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, 3, dialer.dialCount())
	assert.False(t, client.Disabled())
	assert.True(t, client.Connected())
}

func TestEmitWhenNotConnected(t *testing.T) {
	client := newTestClient(&fakeDialer{})

	err := client.Emit(EventTypingStart, TypingPayload{ConversationID: 1, UserType: "customer"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.GetCode(err))
}

func TestInboundFrameDispatch(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer)
	defer client.Disconnect()
	require.NoError(t, client.Connect(context.Background()))

	received := make(chan TypingIndicatorPayload, 1)
	client.On(EventTypingIndicator, func(data json.RawMessage) {
		var p TypingIndicatorPayload
		require.NoError(t, json.Unmarshal(data, &p))
		received <- p
	})

	dialer.lastConn().deliver(t, EventTypingIndicator, TypingIndicatorPayload{
		UserType: "agent",
		IsTyping: true,
	})

	select {
	case p := <-received:
		assert.Equal(t, true, p.IsTyping)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestReconnectReplaysHook(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer)
	defer client.Disconnect()

	var mu sync.Mutex
	hookRuns := 0
	client.SetConnectHook(func() {
		mu.Lock()
		hookRuns++
		mu.Unlock()
	})

	require.NoError(t, client.Connect(context.Background()))

	// Drop the connection; the client should dial again and re-run the hook.
	dialer.lastConn().Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hookRuns == 2 && client.Connected()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestDisconnectClearsStateAndIsSafeWhenIdle(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer)

	cleared := 0
	client.SetDisconnectHook(func() { cleared++ })

	// Safe with no connection.
	client.Disconnect()
	assert.Equal(t, 1, cleared)

	require.NoError(t, client.Connect(context.Background()))
	client.Disconnect()

	assert.Equal(t, 2, cleared)
	assert.False(t, client.Connected())

	// An explicit disconnect does not trigger auto-reconnect.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestDisconnectDuringReconnectStaysDown(t *testing.T) {
	dialer := &flakyDialer{}
	client := NewClient("ws://gateway.test/socket", 100,
		WithDialer(dialer), WithRetryDelay(time.Millisecond))

	var mu sync.Mutex
	hookRuns := 0
	client.SetConnectHook(func() {
		mu.Lock()
		hookRuns++
		mu.Unlock()
	})

	require.NoError(t, client.Connect(context.Background()))

	// Drop the connection while the gateway is unreachable, so the client
	// enters its retry loop.
	dialer.setFail(true)
	dialer.conn(0).Close()
	assert.Eventually(t, func() bool {
		return dialer.dialCount() >= 3
	}, time.Second, time.Millisecond)

	client.Disconnect()

	// The gateway comes back, but the abandoned retry loop must not
	// resurrect the connection the caller explicitly destroyed.
	dialer.setFail(false)
	time.Sleep(50 * time.Millisecond)

	assert.False(t, client.Connected())
	mu.Lock()
	assert.Equal(t, 1, hookRuns)
	mu.Unlock()

	// A dial already in flight when Disconnect landed is closed, not committed.
	if late := dialer.conn(1); late != nil {
		assert.True(t, late.isClosed())
	}
}
