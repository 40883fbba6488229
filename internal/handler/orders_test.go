package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshlane/realtime-go/internal/session"
	"github.com/freshlane/realtime-go/internal/transport"
)

func newOrdersHandler() (*OrdersHandler, *session.Recovery) {
	// Never connected; announcements are best effort and replayed on connect.
	client := transport.NewClient("ws://gateway.test/socket", 3)
	recovery := session.NewRecovery(client)
	return NewOrdersHandler(recovery, client), recovery
}

func TestTrackOrderRemembersSubscription(t *testing.T) {
	h, recovery := newOrdersHandler()

	body, _ := json.Marshal(trackRequest{UserID: 7})
	req := httptest.NewRequest(http.MethodPost, "/ord-901/track", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	state := recovery.Snapshot()
	require.NotNil(t, state.TrackedOrderID)
	assert.Equal(t, "ord-901", *state.TrackedOrderID)
	require.NotNil(t, state.TrackingUserID)
	assert.Equal(t, int64(7), *state.TrackingUserID)
}

func TestTrackOrderRequiresUserID(t *testing.T) {
	h, recovery := newOrdersHandler()

	body, _ := json.Marshal(trackRequest{})
	req := httptest.NewRequest(http.MethodPost, "/ord-901/track", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, recovery.Snapshot().TrackedOrderID)
}

func TestUntrackOrderForgetsSubscription(t *testing.T) {
	h, recovery := newOrdersHandler()
	recovery.RememberOrder("ord-901", 7)

	req := httptest.NewRequest(http.MethodPost, "/ord-901/untrack", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	state := recovery.Snapshot()
	assert.Nil(t, state.TrackedOrderID)
	assert.Nil(t, state.TrackingUserID)
}

func TestUntrackOrderSafeWhenNotTracking(t *testing.T) {
	h, _ := newOrdersHandler()

	req := httptest.NewRequest(http.MethodPost, "/ord-901/untrack", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
