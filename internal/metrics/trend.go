package metrics

import (
	"time"

	"lifesignal/internal/entity"
)

// Direction is the short-term direction of a metric.
type Direction string

const (
	Rising       Direction = "rising"
	Falling      Direction = "falling"
	Flat         Direction = "flat"
	Insufficient Direction = "insufficient"
)

// FlatEpsilon is the smallest delta between the two most recent values that
// counts as movement. Only |delta| < FlatEpsilon is flat.
const FlatEpsilon = 1e-6

// Trend is the verdict for one metric at one instant.
type Trend struct {
	MetricID  string        `json:"metric_id"`
	Direction Direction     `json:"direction"`
	Delta     float64       `json:"delta"`
	Points    int           `json:"points"`
	LastAt    time.Time     `json:"last_at,omitzero"`
	Staleness time.Duration `json:"staleness"`
}

// HasData reports whether the metric has at least one observation.
func (t Trend) HasData() bool {
	return t.Points > 0
}

// IsStale reports whether the most recent observation is older than window.
// A metric without observations is always stale.
func (t Trend) IsStale(window time.Duration) bool {
	return !t.HasData() || t.Staleness > window
}

// Oriented maps the raw direction onto the metric's declared goal direction,
// so that Rising always means "moving the right way".
func (t Trend) Oriented(dir entity.Direction) Direction {
	if dir != entity.DirectionDecrease {
		return t.Direction
	}
	switch t.Direction {
	case Rising:
		return Falling
	case Falling:
		return Rising
	default:
		return t.Direction
	}
}

// Extract computes direction and staleness for one metric's observations.
// Input order does not matter.
func Extract(obs []entity.Observation, now time.Time) (Trend, error) {
	canon, err := Canonicalize(obs)
	if err != nil {
		return Trend{}, err
	}

	trend := Trend{Direction: Insufficient, Points: len(canon)}
	if len(canon) == 0 {
		return trend, nil
	}

	latest := canon[len(canon)-1]
	trend.MetricID = latest.MetricID
	trend.LastAt = latest.At
	trend.Staleness = now.Sub(latest.At)
	if len(canon) < 2 {
		return trend, nil
	}

	previous := canon[len(canon)-2]
	trend.Delta = latest.Value - previous.Value
	switch {
	case trend.Delta >= FlatEpsilon:
		trend.Direction = Rising
	case trend.Delta <= -FlatEpsilon:
		trend.Direction = Falling
	default:
		trend.Direction = Flat
	}
	return trend, nil
}
