package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/transport"
)

// --- transport fakes ---

type fakeConn struct {
	mu      sync.Mutex
	written []transport.Frame
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
	var frame transport.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	f.written = append(f.written, frame)
	f.mu.Unlock()
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

func (f *fakeConn) frames() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Frame(nil), f.written...)
}

func (f *fakeConn) countEvents(event string) int {
	n := 0
	for _, frame := range f.frames() {
		if frame.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeConn) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(transport.Frame{Event: event, Data: data})
	require.NoError(t, err)
	f.inbound <- frame
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	conns []*fakeConn
}

func (d *fakeDialer) Dial(context.Context, string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func connectedClient(t *testing.T) (*transport.Client, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	client := transport.NewClient("ws://gateway.test/socket", 3,
		transport.WithDialer(dialer), transport.WithRetryDelay(time.Millisecond))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Disconnect)
	return client, dialer
}

func disabledClient(t *testing.T) *transport.Client {
	t.Helper()
	dialer := &fakeDialer{fail: true}
	client := transport.NewClient("ws://gateway.test/socket", 3,
		transport.WithDialer(dialer), transport.WithRetryDelay(time.Millisecond))
	require.Error(t, client.Connect(context.Background()))
	require.True(t, client.Disabled())
	return client
}

// --- fallback fake ---

type fakeSub struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFallback struct {
	mu         sync.Mutex
	written    []model.CreateMessageParams
	nextID     int64
	markedRead []int64
	subs       []*fakeSub
	deliver    func([]model.Message)
}

func (f *fakeFallback) Write(_ context.Context, params model.CreateMessageParams) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, params)
	f.nextID++
	return &model.Message{
		ID:             f.nextID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		SenderRole:     params.SenderRole,
		Body:           params.Body,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeFallback) MarkRead(_ context.Context, conversationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, conversationID)
	return nil
}

func (f *fakeFallback) Subscribe(_ int64, fn func([]model.Message)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{}
	f.subs = append(f.subs, sub)
	f.deliver = fn
	return sub
}

func (f *fakeFallback) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// --- rest client mock ---

type mockRestClient struct {
	mock.Mock
}

func (m *mockRestClient) CreateConversation(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockRestClient) FindConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockRestClient) ActiveConversationByCustomer(ctx context.Context, customerID int64) (*model.Conversation, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockRestClient) ConversationsByStatus(ctx context.Context, status model.ConversationStatus) ([]model.Conversation, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *mockRestClient) AssignConversation(ctx context.Context, params model.AssignConversationParams) (*model.Conversation, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockRestClient) Messages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockRestClient) PostMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}
