package alerts

import (
	"time"

	"cloud.google.com/go/civil"

	"lifesignal/internal/entity"
	"lifesignal/internal/metrics"
	"lifesignal/internal/signals"
)

const (
	// UpcomingWindow is how far ahead a scheduled start raises an alert.
	UpcomingWindow = 15 * time.Minute
	// DeadlineHorizon is the largest day difference that raises a deadline
	// alert.
	DeadlineHorizon = 1
	// NudgeHour is the local hour from which missing daily metrics are nudged.
	NudgeHour = 18
)

// Clock fixes the instant and the timezone of one evaluation pass.
type Clock struct {
	Now time.Time
	Loc *time.Location
}

func (c Clock) location() *time.Location {
	if c.Loc == nil {
		return time.Local
	}
	return c.Loc
}

// Local returns now in the pass timezone.
func (c Clock) Local() time.Time {
	return c.Now.In(c.location())
}

// Today returns the calendar day of now in the pass timezone.
func (c Clock) Today() civil.Date {
	return civil.DateOf(c.Local())
}

// dateOf returns the calendar day of t. Date-only values were stored as UTC
// midnight and keep their declared day.
func (c Clock) dateOf(t time.Time, dateOnly bool) civil.Date {
	if dateOnly {
		return civil.DateOf(t.UTC())
	}
	return civil.DateOf(t.In(c.location()))
}

// ReminderDue fires once the reminder time has passed and the reminder has
// not been marked fired.
func ReminderDue(c Clock, act entity.Action) (Record, bool) {
	if act.ReminderAt == nil || act.ReminderFired || act.ReminderAt.After(c.Now) {
		return Record{}, false
	}
	rec := newRecord(RuleReminderDue, SeverityInfo, act.ID,
		Key(RuleReminderDue, act.ID, unixBucket(*act.ReminderAt)), c.Now)
	rec.Title, rec.Message = FormatReminder(act)
	rec.Link = actionLink(act)
	return rec, true
}

// UpcomingStart fires when an open task is scheduled to start within the
// next UpcomingWindow.
func UpcomingStart(c Clock, act entity.Action) (Record, bool) {
	if act.StartAt == nil || act.Completed || act.Canceled {
		return Record{}, false
	}
	until := act.StartAt.Sub(c.Now)
	if until <= 0 || until > UpcomingWindow {
		return Record{}, false
	}
	day := c.dateOf(*act.StartAt, false)
	rec := newRecord(RuleUpcomingStart, SeverityInfo, act.ID,
		Key(RuleUpcomingStart, act.ID, dayBucket(day)), c.Now)
	rec.Title, rec.Message = FormatUpcoming(act, until)
	rec.Link = actionLink(act)
	return rec, true
}

// DeadlineApproaching fires for open tasks due tomorrow, today or overdue.
// The day difference is part of the key so the alert repeats as the task
// crosses into the next bucket.
func DeadlineApproaching(c Clock, act entity.Action) (Record, bool) {
	if act.Due == nil || act.Completed || act.Canceled {
		return Record{}, false
	}
	diff := c.dateOf(*act.Due, act.DueDateOnly).DaysSince(c.Today())
	if diff > DeadlineHorizon {
		return Record{}, false
	}

	sev := SeverityWarning
	if diff < 0 {
		sev = SeverityError
	}
	rec := newRecord(RuleDeadlineApproaching, sev, act.ID,
		Key(RuleDeadlineApproaching, act.ID, intBucket(diff)), c.Now)
	rec.Title, rec.Message = FormatDeadline(act, diff)
	rec.Link = actionLink(act)
	return rec, true
}

// AreaDegraded fires at most once per area per day while the area needs
// attention.
func AreaDegraded(c Clock, status signals.AreaStatus) (Record, bool) {
	if status.Status != signals.StatusAttention {
		return Record{}, false
	}
	rec := newRecord(RuleAreaDegraded, SeverityWarning, status.AreaID,
		Key(RuleAreaDegraded, status.AreaID, dayBucket(c.Today())), c.Now)
	rec.Title, rec.Message = FormatAreaDegraded(status)
	rec.Link = "lifesignal://areas/" + status.AreaID
	return rec, true
}

// MetricUnupdated nudges in the evening when a daily metric has no
// observation today.
func MetricUnupdated(c Clock, def entity.MetricDefinition, obs []entity.Observation) (Record, bool) {
	if def.Frequency != entity.FrequencyDaily {
		return Record{}, false
	}
	if c.Local().Hour() < NudgeHour {
		return Record{}, false
	}
	today := c.Today()
	if metrics.ObservedOn(obs, today, c.location()) {
		return Record{}, false
	}
	rec := newRecord(RuleMetricUnupdated, SeverityInfo, def.ID,
		Key(RuleMetricUnupdated, def.ID, dayBucket(today)), c.Now)
	rec.Title, rec.Message = FormatMetricUnupdated(def)
	rec.Link = "lifesignal://metrics/" + def.ID
	return rec, true
}

// ActionRules evaluates every per-action rule.
func ActionRules(c Clock, act entity.Action) []Record {
	var out []Record
	for _, rule := range []func(Clock, entity.Action) (Record, bool){ReminderDue, UpcomingStart, DeadlineApproaching} {
		if rec, ok := rule(c, act); ok {
			out = append(out, rec)
		}
	}
	return out
}

func actionLink(act entity.Action) string {
	return "lifesignal://actions/" + act.ID
}
