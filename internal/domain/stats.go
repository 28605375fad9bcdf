package domain

import (
	"fmt"
	"time"
)

// SpeedSource tells how a DerivedStats speed value was obtained
type SpeedSource string

const (
	// SpeedSynthetic values are fabricated from wall-clock time while the path
	// keeps changing. They are display filler, not a measurement.
	SpeedSynthetic SpeedSource = "synthetic"
	// SpeedDecaying values ramp down after the path stopped changing.
	SpeedDecaying    SpeedSource = "decaying"
	SpeedStationary  SpeedSource = "stationary"
	SpeedNone        SpeedSource = "none"
	SpeedUnavailable SpeedSource = "unavailable"
)

const (
	StatusNoGPSData   = "No GPS data"
	StatusNoRouteData = "No route data"
)

// DerivedStats are the trip statistics derived from one snapshot
type DerivedStats struct {
	TotalPoints     int         `json:"totalPoints"`
	DistanceKM      float64     `json:"distanceKm"`
	CurrentLocation *LatLon     `json:"currentLocation"`
	ComputedAt      time.Time   `json:"computedAt"`
	SpeedKMH        float64     `json:"speedKmh"`
	Speed           SpeedSource `json:"speedSource"`
	Status          string      `json:"status,omitempty"`
}

// DistanceText formats the distance the way the dashboard shows it
func (s DerivedStats) DistanceText() string {
	if s.TotalPoints == 0 {
		return "0 km"
	}
	return fmt.Sprintf("%.1f km", s.DistanceKM)
}

func (s DerivedStats) SpeedText() string {
	if s.Speed == SpeedUnavailable {
		return "n/a"
	}
	return fmt.Sprintf("%.0f km/h", s.SpeedKMH)
}

// RevisitState remembers the last observed path so repeated upstream data can
// be told apart from movement. The zero value means nothing was seen yet.
type RevisitState struct {
	LastPath  string    `json:"lastPath"`
	ChangedAt time.Time `json:"changedAt"`
}

// PollState is the observable state of the polling controller
type PollState struct {
	Snapshot      *Snapshot     `json:"snapshot"`
	Err           error         `json:"-"`
	ErrDismissed  bool          `json:"errDismissed"`
	LastUpdate    time.Time     `json:"lastUpdate"`
	Interval      time.Duration `json:"interval"`
	Endpoint      string        `json:"endpoint"`
	UsingMockData bool          `json:"usingMockData"`
	Fetching      bool          `json:"fetching"`
}

// VisibleError returns the error observers should display, if any
func (s PollState) VisibleError() error {
	if s.ErrDismissed {
		return nil
	}
	return s.Err
}
