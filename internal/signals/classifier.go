package signals

import (
	"context"
	"fmt"
	"time"

	"lifesignal/internal/entity"
	"lifesignal/internal/metrics"
)

// Status is the discrete health of one area.
type Status string

const (
	StatusImproving Status = "improving"
	StatusAttention Status = "attention"
	StatusUnchanged Status = "unchanged"
	StatusStable    Status = "stable"
)

const (
	// TouchWindow is how recently an action must have been touched to count
	// as activity.
	TouchWindow = 7 * 24 * time.Hour
	// StaleWindow is the age after which a metric without a newer
	// observation counts as stale.
	StaleWindow = 14 * 24 * time.Hour
)

var statusScores = map[Status]float64{
	StatusImproving: 1.0,
	StatusAttention: 0.2,
	StatusUnchanged: 0.5,
	StatusStable:    0.7,
}

// Score returns the fixed contribution score of a status.
func (s Status) Score() float64 {
	return statusScores[s]
}

// AreaInput is everything the classifier looks at for one area.
type AreaInput struct {
	Area         entity.Area
	Actions      []entity.Action
	Metrics      []entity.MetricDefinition
	Observations map[string][]entity.Observation
}

// AreaStatus is the classifier verdict for one area.
type AreaStatus struct {
	AreaID  string          `json:"area_id"`
	Kind    entity.AreaKind `json:"kind"`
	Title   string          `json:"title,omitempty"`
	Status  Status          `json:"status"`
	Score   float64         `json:"score"`
	Reason  string          `json:"reason"`
	Touched int             `json:"recent_actions"`
	Rising  int             `json:"rising"`
	Falling int             `json:"falling"`
	Stale   int             `json:"stale"`
	Total   int             `json:"metrics"`
	Trends  []metrics.Trend `json:"trends,omitempty"`
	// Malformed lists metrics whose observations could not be read. They
	// count as stale and never as rising or falling.
	Malformed []string `json:"malformed,omitempty"`
}

// rule is one row of the priority table. The first matching rule wins.
type rule struct {
	status Status
	match  func(c counts) bool
	reason func(c counts) string
}

type counts struct {
	touched, rising, falling, stale, total int
}

var rules = []rule{
	{
		status: StatusImproving,
		match:  func(c counts) bool { return c.touched > 0 && c.rising > 0 },
		reason: func(c counts) string {
			return fmt.Sprintf("%d recent action(s) and %d metric(s) moving the right way", c.touched, c.rising)
		},
	},
	{
		status: StatusAttention,
		match:  func(c counts) bool { return c.falling > c.rising || (c.total > 0 && 2*c.stale > c.total) },
		reason: func(c counts) string {
			if c.falling > c.rising {
				return fmt.Sprintf("%d metric(s) moving the wrong way vs %d improving", c.falling, c.rising)
			}
			return fmt.Sprintf("%d of %d metric(s) not updated in 14 days", c.stale, c.total)
		},
	},
	{
		status: StatusUnchanged,
		match:  func(c counts) bool { return c.touched > 0 && c.rising == 0 && c.falling == 0 },
		reason: func(c counts) string {
			return fmt.Sprintf("%d recent action(s) but no metric movement", c.touched)
		},
	},
}

// Classify assigns a status to one area as of now. Rules are evaluated in
// priority order; when none match the area is stable.
func Classify(in AreaInput, now time.Time) AreaStatus {
	out := AreaStatus{
		AreaID: in.Area.ID,
		Kind:   in.Area.Kind,
		Title:  in.Area.Title,
	}

	var c counts
	for _, act := range in.Actions {
		touched, ok := act.LastTouched()
		if !ok || touched.After(now) {
			continue
		}
		if now.Sub(touched) <= TouchWindow {
			c.touched++
		}
	}

	c.total = len(in.Metrics)
	for _, def := range in.Metrics {
		trend, err := metrics.Extract(in.Observations[def.ID], now)
		if err != nil {
			out.Malformed = append(out.Malformed, def.ID)
			c.stale++
			continue
		}
		trend.MetricID = def.ID
		out.Trends = append(out.Trends, trend)

		switch trend.Oriented(def.Direction) {
		case metrics.Rising:
			c.rising++
		case metrics.Falling:
			c.falling++
		}
		if trend.IsStale(StaleWindow) {
			c.stale++
		}
	}

	out.Touched = c.touched
	out.Rising = c.rising
	out.Falling = c.falling
	out.Stale = c.stale
	out.Total = c.total

	out.Status = StatusStable
	out.Reason = "no strong signal either way"
	for _, r := range rules {
		if r.match(c) {
			out.Status = r.status
			out.Reason = r.reason(c)
			break
		}
	}
	out.Score = out.Status.Score()
	return out
}

// LoadAreaInput gathers one area's actions, metrics and observations.
func LoadAreaInput(ctx context.Context, src entity.Source, area entity.Area) (AreaInput, error) {
	in := AreaInput{Area: area, Observations: make(map[string][]entity.Observation)}

	actions, err := src.ListActions(ctx, area.ID)
	if err != nil {
		return in, fmt.Errorf("list actions for %s: %w", area.ID, err)
	}
	in.Actions = actions

	defs, err := src.ListMetricDefinitions(ctx, area.ID)
	if err != nil {
		return in, fmt.Errorf("list metrics for %s: %w", area.ID, err)
	}
	in.Metrics = defs

	for _, def := range defs {
		obs, err := src.ListMetricObservations(ctx, def.ID)
		if err != nil {
			return in, fmt.Errorf("list observations for %s: %w", def.ID, err)
		}
		in.Observations[def.ID] = obs
	}
	return in, nil
}

// ClassifyAll classifies every area in src. Areas whose data cannot be read
// are skipped and reported in the returned error map.
func ClassifyAll(ctx context.Context, src entity.Source, now time.Time) ([]AreaStatus, map[string]error, error) {
	areas, err := src.ListAreas(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list areas: %w", err)
	}

	var statuses []AreaStatus
	var failed map[string]error
	for _, area := range areas {
		in, err := LoadAreaInput(ctx, src, area)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[area.ID] = err
			continue
		}
		statuses = append(statuses, Classify(in, now))
	}
	return statuses, failed, nil
}
