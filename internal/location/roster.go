package location

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/transport"
)

// Roster is the dispatch-side view of live driver positions, keyed by driver
// id. A new sample replaces the previous one; staleness is derived at read
// time and never mutates the underlying samples. Only an explicit disconnect
// removes a driver.
type Roster struct {
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	drivers map[string]model.LocationSample
}

func NewRoster(staleAfter time.Duration) *Roster {
	return &Roster{
		staleAfter: staleAfter,
		now:        time.Now,
		drivers:    make(map[string]model.LocationSample),
	}
}

// Upsert replaces the driver's entry with the new sample.
func (r *Roster) Upsert(sample model.LocationSample) {
	if sample.DriverID == "" {
		return
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = r.now()
	}

	r.mu.Lock()
	r.drivers[sample.DriverID] = sample
	r.mu.Unlock()
}

// UpsertAll ingests a batch snapshot, replacing per driver.
func (r *Roster) UpsertAll(samples []model.LocationSample) {
	for _, sample := range samples {
		r.Upsert(sample)
	}
}

// Remove drops the driver entirely. Distinct from staleness, which keeps the
// last known position visible.
func (r *Roster) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, driverID)
}

// Snapshot returns the staleness-annotated roster, ordered by driver id for
// stable rendering.
func (r *Roster) Snapshot() []model.RosterEntry {
	now := r.now()

	r.mu.Lock()
	entries := make([]model.RosterEntry, 0, len(r.drivers))
	for _, sample := range r.drivers {
		entries = append(entries, model.RosterEntry{
			LocationSample: sample,
			Stale:          now.Sub(sample.CapturedAt) > r.staleAfter,
		})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DriverID < entries[j].DriverID
	})
	return entries
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drivers)
}

// Consumer wires the roster to the gateway's location stream.
type Consumer struct {
	client *transport.Client
	roster *Roster

	updateID     int
	batchID      int
	disconnectID int
}

func NewConsumer(client *transport.Client, roster *Roster) *Consumer {
	c := &Consumer{client: client, roster: roster}

	c.updateID = client.On(transport.EventDriverLocationUpdate, func(data json.RawMessage) {
		var sample model.LocationSample
		if err := json.Unmarshal(data, &sample); err != nil {
			log.Warn().Err(err).Msg("discarding malformed location update")
			return
		}
		roster.Upsert(sample)
	})

	c.batchID = client.On(transport.EventDriversAllLocations, func(data json.RawMessage) {
		var samples []model.LocationSample
		if err := json.Unmarshal(data, &samples); err != nil {
			log.Warn().Err(err).Msg("discarding malformed location batch")
			return
		}
		roster.UpsertAll(samples)
	})

	c.disconnectID = client.On(transport.EventDriverDisconnected, func(data json.RawMessage) {
		var p transport.DriverDisconnectedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Msg("discarding malformed disconnect signal")
			return
		}
		roster.Remove(p.DriverID)
		log.Debug().Str("driverId", p.DriverID).Msg("driver removed from roster")
	})

	return c
}

// Close releases the consumer's event handlers.
func (c *Consumer) Close() {
	c.client.Off(transport.EventDriverLocationUpdate, c.updateID)
	c.client.Off(transport.EventDriversAllLocations, c.batchID)
	c.client.Off(transport.EventDriverDisconnected, c.disconnectID)
}
