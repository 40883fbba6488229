package location

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/freshlane/realtime-go/internal/errors"
	"github.com/freshlane/realtime-go/internal/transport"
)

// Position is one raw device position callback.
type Position struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}

// PositionSource is the device location capability. Watch delivers positions
// continuously until the returned cancel func is called; a denied permission
// or hardware failure surfaces through errFn.
type PositionSource interface {
	Watch(fn func(Position), errFn func(error)) (cancel func(), err error)
}

// WakeLock keeps the screen awake while tracking, since a locked screen stops
// position delivery. Release must be safe to call when never acquired.
type WakeLock interface {
	Acquire() error
	Release()
}

// Tracker is the driver-side half of the location pipeline: it samples device
// position and pushes every sample over the gateway tagged with the driver id
// and the optionally associated order. The position watch and the wake lock
// are each singly owned; starting while already tracking is a no-op.
type Tracker struct {
	client *transport.Client
	source PositionSource
	wake   WakeLock

	mu         sync.Mutex
	tracking   bool
	generation int
	cancel     func()
	driverID   string
	orderID    *string
}

func NewTracker(client *transport.Client, source PositionSource, wake WakeLock) *Tracker {
	return &Tracker{client: client, source: source, wake: wake}
}

func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// StartTracking begins continuous position broadcasting for the driver.
// A no-op when already tracking. Geolocation denial stops tracking cleanly,
// releases the wake lock and surfaces an actionable error.
func (t *Tracker) StartTracking(driverID string) error {
	if driverID == "" {
		return apperrors.MissingRequired("driverId")
	}

	t.mu.Lock()
	if t.tracking {
		t.mu.Unlock()
		return nil
	}
	t.tracking = true
	t.generation++
	gen := t.generation
	t.driverID = driverID
	t.mu.Unlock()

	if err := t.wake.Acquire(); err != nil {
		// Tracking still works, the screen may just sleep sooner.
		log.Warn().Err(err).Msg("wake lock unavailable")
	}

	cancel, err := t.source.Watch(
		func(pos Position) { t.push(gen, pos) },
		func(err error) { t.fail(gen, err) },
	)
	if err != nil {
		t.StopTracking()
		return apperrors.GeolocationDenied(err.Error())
	}

	t.mu.Lock()
	if gen != t.generation {
		// Stopped while the watch was being established.
		t.mu.Unlock()
		cancel()
		return nil
	}
	t.cancel = cancel
	t.mu.Unlock()

	log.Info().Str("driverId", driverID).Msg("location tracking started")
	return nil
}

// SetOrder associates (or clears) the order tagged onto every sample.
func (t *Tracker) SetOrder(orderID *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orderID = orderID
}

func (t *Tracker) push(gen int, pos Position) {
	t.mu.Lock()
	if gen != t.generation || !t.tracking {
		// A callback registered before StopTracking must not emit afterwards.
		t.mu.Unlock()
		return
	}
	payload := transport.DriverLocationPayload{
		DriverID: t.driverID,
		Lat:      pos.Latitude,
		Lng:      pos.Longitude,
		OrderID:  t.orderID,
	}
	t.mu.Unlock()

	if err := t.client.Emit(transport.EventDriverLocation, payload); err != nil {
		log.Debug().Err(err).Msg("location sample not delivered")
	}
}

func (t *Tracker) fail(gen int, err error) {
	t.mu.Lock()
	stale := gen != t.generation
	t.mu.Unlock()
	if stale {
		return
	}

	log.Warn().Err(err).Msg("position watch failed, stopping tracking")
	t.StopTracking()
}

// StopTracking cancels the position watch and releases the wake lock
// unconditionally, even when one of the two was never acquired.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	wasTracking := t.tracking
	t.tracking = false
	t.generation++
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wake.Release()

	if wasTracking {
		log.Info().Msg("location tracking stopped")
	}
}

// ReacquireWake re-requests the wake lock after the app regains foreground
// visibility. A no-op unless tracking is still logically active.
func (t *Tracker) ReacquireWake() {
	t.mu.Lock()
	tracking := t.tracking
	t.mu.Unlock()

	if !tracking {
		return
	}
	if err := t.wake.Acquire(); err != nil {
		log.Warn().Err(err).Msg("wake lock re-acquisition failed")
	}
}
