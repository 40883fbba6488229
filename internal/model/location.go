package model

import (
	"time"
)

// LocationSample is one driver position report. The roster keeps only the
// latest sample per driver; a new sample supersedes the previous one.
type LocationSample struct {
	DriverID   string    `json:"driverId"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	OrderID    *string   `json:"orderId,omitempty"`
	DriverName *string   `json:"driverName,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// RosterEntry is the derived, display-facing view of a driver's last known
// position. Stale is a judgment about sample age, not a deletion.
type RosterEntry struct {
	LocationSample
	Stale bool `json:"stale"`
}
