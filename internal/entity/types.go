package entity

import (
	"context"
	"time"
)

// AreaKind is the stable tag used for weight lookup. It is decided when the
// area is created and never derived from display text.
type AreaKind string

const (
	KindHealth        AreaKind = "health"
	KindFinances      AreaKind = "finances"
	KindCareer        AreaKind = "career"
	KindRelationships AreaKind = "relationships"
	KindGrowth        AreaKind = "growth"
	KindHome          AreaKind = "home"
	KindLeisure       AreaKind = "leisure"
)

// Direction is the declared improvement direction of a metric.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionNeutral  Direction = "neutral"
)

// Frequency is the declared sampling frequency of a metric.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// GoalKind classifies how a goal's progress is measured.
type GoalKind string

const (
	// GoalDirectional goals are compasses and are never measured.
	GoalDirectional GoalKind = "directional"
	// GoalStrategic goals are bound to a metric.
	GoalStrategic GoalKind = "strategic"
	// GoalTactical goals are milestones, optionally bound to a metric.
	GoalTactical GoalKind = "tactical"
)

// Area is a life domain that owns metrics and actions.
type Area struct {
	ID    string
	Kind  AreaKind
	Title string

	Source string
}

// MetricDefinition declares a periodically observed quantity.
type MetricDefinition struct {
	ID        string
	AreaID    string
	Title     string
	Direction Direction
	Frequency Frequency
}

// Observation is a single observed value of a metric.
type Observation struct {
	MetricID string
	At       time.Time
	Value    float64
}

// Goal is a declared outcome for an area.
type Goal struct {
	ID             string
	AreaID         string
	Title          string
	Kind           GoalKind
	MetricID       string
	Start          *float64
	Target         *float64
	Current        *float64
	ManualProgress *float64
}

// Action is a task or recurring habit instance.
type Action struct {
	ID            string
	AreaID        string
	GoalID        string
	Title         string
	Completed     bool
	Canceled      bool
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
	CompletedAt   *time.Time
	StartAt       *time.Time
	Due           *time.Time
	DueDateOnly   bool
	ReminderAt    *time.Time
	ReminderFired bool
}

// LastTouched returns the most recent of the action's created, updated and
// completed timestamps.
func (a Action) LastTouched() (time.Time, bool) {
	var latest time.Time
	for _, ts := range []*time.Time{a.CreatedAt, a.UpdatedAt, a.CompletedAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest, !latest.IsZero()
}

// Source is the read-only view of the externally owned entities.
// An empty areaID lists across all areas.
type Source interface {
	ListAreas(ctx context.Context) ([]Area, error)
	ListActions(ctx context.Context, areaID string) ([]Action, error)
	ListMetricDefinitions(ctx context.Context, areaID string) ([]MetricDefinition, error)
	ListMetricObservations(ctx context.Context, metricID string) ([]Observation, error)
	ListGoals(ctx context.Context, areaID string) ([]Goal, error)
}

// ReminderMarker is the only write-back the engine performs.
// Implementations must be idempotent.
type ReminderMarker interface {
	MarkReminderFired(ctx context.Context, actionID string) error
}

// Loader produces a fresh snapshot for one evaluation pass.
type Loader func(ctx context.Context) (Source, error)
