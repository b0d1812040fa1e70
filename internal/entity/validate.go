package entity

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

type rawDocument struct {
	Area    rawArea     `yaml:"area"`
	Metrics []rawMetric `yaml:"metrics"`
	Actions []rawAction `yaml:"actions"`
	Goals   []rawGoal   `yaml:"goals"`
}

type rawArea struct {
	ID    string `yaml:"id"`
	Kind  string `yaml:"kind"`
	Title string `yaml:"title"`
}

type rawMetric struct {
	ID           string           `yaml:"id"`
	Title        string           `yaml:"title,omitempty"`
	Direction    string           `yaml:"direction,omitempty"`
	Frequency    string           `yaml:"frequency"`
	Observations []rawObservation `yaml:"observations,omitempty"`
}

type rawObservation struct {
	At    string   `yaml:"at"`
	Value *float64 `yaml:"value"`
}

type rawAction struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title,omitempty"`
	GoalID        string `yaml:"goal_id,omitempty"`
	Completed     bool   `yaml:"completed,omitempty"`
	Canceled      bool   `yaml:"canceled,omitempty"`
	CreatedAt     string `yaml:"created_at,omitempty"`
	UpdatedAt     string `yaml:"updated_at,omitempty"`
	CompletedAt   string `yaml:"completed_at,omitempty"`
	StartAt       string `yaml:"start_at,omitempty"`
	Due           string `yaml:"due,omitempty"`
	ReminderAt    string `yaml:"reminder_at,omitempty"`
	ReminderFired bool   `yaml:"reminder_fired,omitempty"`
}

type rawGoal struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title,omitempty"`
	Kind           string   `yaml:"kind"`
	MetricID       string   `yaml:"metric_id,omitempty"`
	Start          *float64 `yaml:"start,omitempty"`
	Target         *float64 `yaml:"target,omitempty"`
	Current        *float64 `yaml:"current,omitempty"`
	ManualProgress *float64 `yaml:"manual_progress,omitempty"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Document is one normalized area file.
type Document struct {
	Area         Area
	Metrics      []MetricDefinition
	Observations []Observation
	Actions      []Action
	Goals        []Goal
	Source       string
}

// ParseAndValidateDocument unmarshals and validates a YAML area document.
func ParseAndValidateDocument(data []byte, source string) (Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawDocument(raw, source)
}

func validateRawDocument(raw rawDocument, source string) (Document, error) {
	var errs ValidationErrors
	fail := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	doc := Document{Source: source}
	doc.Area = Area{
		ID:     strings.TrimSpace(raw.Area.ID),
		Kind:   AreaKind(strings.ToLower(strings.TrimSpace(raw.Area.Kind))),
		Title:  strings.TrimSpace(raw.Area.Title),
		Source: source,
	}
	if doc.Area.ID == "" {
		fail("area.id", "is required")
	}
	if doc.Area.Kind == "" {
		fail("area.kind", "is required")
	}

	metricIDs := make(map[string]struct{})
	for idx, rm := range raw.Metrics {
		path := fmt.Sprintf("metrics[%d]", idx)
		def := MetricDefinition{
			ID:     strings.TrimSpace(rm.ID),
			AreaID: doc.Area.ID,
			Title:  strings.TrimSpace(rm.Title),
		}
		if def.ID == "" {
			fail(path+".id", "is required")
		} else if _, dup := metricIDs[def.ID]; dup {
			fail(path+".id", "duplicate metric id %q", def.ID)
		} else {
			metricIDs[def.ID] = struct{}{}
		}

		dir, err := parseDirection(rm.Direction)
		if err != nil {
			fail(path+".direction", "%v", err)
		}
		def.Direction = dir

		freq, err := parseFrequency(rm.Frequency)
		if err != nil {
			fail(path+".frequency", "%v", err)
		}
		def.Frequency = freq
		doc.Metrics = append(doc.Metrics, def)

		for oIdx, ro := range rm.Observations {
			oPath := fmt.Sprintf("%s.observations[%d]", path, oIdx)
			at, _, err := parseTimestamp(ro.At)
			if err != nil {
				fail(oPath+".at", "%v", err)
				continue
			}
			if at.IsZero() {
				fail(oPath+".at", "is required")
				continue
			}
			if ro.Value == nil {
				fail(oPath+".value", "is required")
				continue
			}
			doc.Observations = append(doc.Observations, Observation{MetricID: def.ID, At: at, Value: *ro.Value})
		}
	}

	actionIDs := make(map[string]struct{})
	for idx, ra := range raw.Actions {
		path := fmt.Sprintf("actions[%d]", idx)
		act := Action{
			ID:            strings.TrimSpace(ra.ID),
			AreaID:        doc.Area.ID,
			GoalID:        strings.TrimSpace(ra.GoalID),
			Title:         strings.TrimSpace(ra.Title),
			Completed:     ra.Completed,
			Canceled:      ra.Canceled,
			ReminderFired: ra.ReminderFired,
		}
		if act.ID == "" {
			fail(path+".id", "is required")
		} else if _, dup := actionIDs[act.ID]; dup {
			fail(path+".id", "duplicate action id %q", act.ID)
		} else {
			actionIDs[act.ID] = struct{}{}
		}

		stamps := []struct {
			field string
			value string
			dst   **time.Time
		}{
			{"created_at", ra.CreatedAt, &act.CreatedAt},
			{"updated_at", ra.UpdatedAt, &act.UpdatedAt},
			{"completed_at", ra.CompletedAt, &act.CompletedAt},
			{"start_at", ra.StartAt, &act.StartAt},
			{"reminder_at", ra.ReminderAt, &act.ReminderAt},
		}
		for _, s := range stamps {
			ts, _, err := parseTimestamp(s.value)
			if err != nil {
				fail(path+"."+s.field, "%v", err)
				continue
			}
			if !ts.IsZero() {
				*s.dst = &ts
			}
		}
		due, dateOnly, err := parseTimestamp(ra.Due)
		if err != nil {
			fail(path+".due", "%v", err)
		} else if !due.IsZero() {
			act.Due = &due
			act.DueDateOnly = dateOnly
		}
		doc.Actions = append(doc.Actions, act)
	}

	goalIDs := make(map[string]struct{})
	for idx, rg := range raw.Goals {
		path := fmt.Sprintf("goals[%d]", idx)
		goal := Goal{
			ID:             strings.TrimSpace(rg.ID),
			AreaID:         doc.Area.ID,
			Title:          strings.TrimSpace(rg.Title),
			MetricID:       strings.TrimSpace(rg.MetricID),
			Start:          rg.Start,
			Target:         rg.Target,
			Current:        rg.Current,
			ManualProgress: rg.ManualProgress,
		}
		if goal.ID == "" {
			fail(path+".id", "is required")
		} else if _, dup := goalIDs[goal.ID]; dup {
			fail(path+".id", "duplicate goal id %q", goal.ID)
		} else {
			goalIDs[goal.ID] = struct{}{}
		}
		kind, err := ParseGoalKind(rg.Kind)
		if err != nil {
			fail(path+".kind", "%v", err)
		}
		goal.Kind = kind
		doc.Goals = append(doc.Goals, goal)
	}

	if len(errs) > 0 {
		return Document{}, errs
	}
	return doc, nil
}

func parseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case "", DirectionIncrease:
		return DirectionIncrease, nil
	case DirectionDecrease:
		return DirectionDecrease, nil
	case DirectionNeutral:
		return DirectionNeutral, nil
	default:
		return "", fmt.Errorf("must be one of increase, decrease, neutral (got %q)", value)
	}
}

func parseFrequency(value string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(value))) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("must be one of daily, weekly, monthly (got %q)", value)
	}
}

// ParseGoalKind accepts the canonical kinds and their common aliases.
func ParseGoalKind(value string) (GoalKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "directional", "vision":
		return GoalDirectional, nil
	case "strategic", "metric", "metric-bound":
		return GoalStrategic, nil
	case "tactical", "milestone":
		return GoalTactical, nil
	default:
		return "", fmt.Errorf("must be one of directional, strategic, tactical (got %q)", value)
	}
}

// parseTimestamp accepts RFC3339 or a bare date. Bare dates are returned as
// UTC midnight with dateOnly set so callers can compare calendar days
// without a zone shift.
func parseTimestamp(value string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, false, nil
	}
	if ts, err := time.ParseInLocation(dateLayout, value, time.UTC); err == nil {
		return ts, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid timestamp %q (want RFC3339 or YYYY-MM-DD)", value)
}
