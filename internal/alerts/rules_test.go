package alerts

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesignal/internal/entity"
	"lifesignal/internal/signals"
)

var clock = Clock{Now: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), Loc: time.UTC}

func at(d time.Duration) *time.Time {
	t := clock.Now.Add(d)
	return &t
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestReminderDue(t *testing.T) {
	act := entity.Action{ID: "call-mom", Title: "Call mom", ReminderAt: at(-time.Minute)}
	rec, ok := ReminderDue(clock, act)
	require.True(t, ok)
	assert.Equal(t, SeverityInfo, rec.Severity)
	assert.Equal(t, "call-mom", rec.SourceID)
	assert.Equal(t, "Call mom", rec.Message)
	assert.True(t, strings.HasPrefix(rec.Key, "reminder-due|call-mom|"))
	assert.NotEmpty(t, rec.ID)

	act.ReminderFired = true
	_, ok = ReminderDue(clock, act)
	assert.False(t, ok, "fired reminder must not re-emit")

	_, ok = ReminderDue(clock, entity.Action{ID: "later", ReminderAt: at(time.Minute)})
	assert.False(t, ok, "future reminder")
}

func TestUpcomingStartWindow(t *testing.T) {
	cases := []struct {
		name  string
		start *time.Time
		act   entity.Action
		want  bool
	}{
		{"in ten minutes", at(10 * time.Minute), entity.Action{}, true},
		{"exactly fifteen", at(15 * time.Minute), entity.Action{}, true},
		{"sixteen minutes", at(16 * time.Minute), entity.Action{}, false},
		{"already started", at(0), entity.Action{}, false},
		{"completed", at(5 * time.Minute), entity.Action{Completed: true}, false},
		{"canceled", at(5 * time.Minute), entity.Action{Canceled: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			act := tc.act
			act.ID = "standup"
			act.StartAt = tc.start
			rec, ok := UpcomingStart(clock, act)
			assert.Equal(t, tc.want, ok)
			if ok {
				assert.Equal(t, "upcoming-start|standup|2026-10-16", rec.Key)
			}
		})
	}
}

func TestDeadlineBuckets(t *testing.T) {
	cases := []struct {
		due   *time.Time
		ok    bool
		sev   Severity
		title string
		key   string
	}{
		{date(2026, 10, 18), false, "", "", ""},
		{date(2026, 10, 17), true, SeverityWarning, "📌 Due tomorrow", "deadline-approaching|tax|1"},
		{date(2026, 10, 16), true, SeverityWarning, "📌 Due today", "deadline-approaching|tax|0"},
		{date(2026, 10, 14), true, SeverityError, "⚠️ Overdue", "deadline-approaching|tax|-2"},
	}
	for _, tc := range cases {
		act := entity.Action{ID: "tax", Due: tc.due, DueDateOnly: true}
		rec, ok := DeadlineApproaching(clock, act)
		require.Equal(t, tc.ok, ok, "due %s", tc.due)
		if !ok {
			continue
		}
		assert.Equal(t, tc.sev, rec.Severity)
		assert.Equal(t, tc.title, rec.Title)
		assert.Equal(t, tc.key, rec.Key)
	}

	_, ok := DeadlineApproaching(clock, entity.Action{ID: "tax", Due: date(2026, 10, 10), Completed: true})
	assert.False(t, ok, "completed tasks never alert")
}

func TestDeadlineKeyStableWithinDay(t *testing.T) {
	act := entity.Action{ID: "tax", Due: date(2026, 10, 17), DueDateOnly: true}
	first, _ := DeadlineApproaching(clock, act)
	later := clock
	later.Now = later.Now.Add(6 * time.Hour)
	second, _ := DeadlineApproaching(later, act)
	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDeadlineDateOnlyKeepsDeclaredDay(t *testing.T) {
	// Late evening west of UTC: the local day is still the 16th.
	west := Clock{Now: time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC), Loc: time.FixedZone("UTC-7", -7*3600)}
	rec, ok := DeadlineApproaching(west, entity.Action{ID: "tax", Due: date(2026, 10, 16), DueDateOnly: true})
	require.True(t, ok)
	assert.Equal(t, "deadline-approaching|tax|0", rec.Key)
}

func TestAreaDegraded(t *testing.T) {
	status := signals.AreaStatus{AreaID: "fin", Title: "Finances", Status: signals.StatusAttention, Reason: "2 metric(s) moving the wrong way vs 0 improving"}
	rec, ok := AreaDegraded(clock, status)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, rec.Severity)
	assert.Equal(t, "area-degraded|fin|2026-10-16", rec.Key)
	assert.Contains(t, rec.Message, "Finances")

	status.Status = signals.StatusStable
	_, ok = AreaDegraded(clock, status)
	assert.False(t, ok)
}

func TestMetricUnupdated(t *testing.T) {
	def := entity.MetricDefinition{ID: "mood", Frequency: entity.FrequencyDaily}
	evening := Clock{Now: time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC), Loc: time.UTC}

	_, ok := MetricUnupdated(clock, def, nil)
	assert.False(t, ok, "before 18:00")

	rec, ok := MetricUnupdated(evening, def, []entity.Observation{{MetricID: "mood", At: evening.Now.AddDate(0, 0, -1), Value: 5}})
	require.True(t, ok)
	assert.Equal(t, "metric-unupdated|mood|2026-10-16", rec.Key)

	_, ok = MetricUnupdated(evening, def, []entity.Observation{{MetricID: "mood", At: evening.Now.Add(-time.Hour), Value: 5}})
	assert.False(t, ok, "already observed today")

	weekly := entity.MetricDefinition{ID: "weight", Frequency: entity.FrequencyWeekly}
	_, ok = MetricUnupdated(evening, weekly, nil)
	assert.False(t, ok, "weekly metrics are not nudged")
}

func TestActionRulesCombines(t *testing.T) {
	act := entity.Action{ID: "a", ReminderAt: at(-time.Minute), StartAt: at(5 * time.Minute), Due: date(2026, 10, 16), DueDateOnly: true}
	recs := ActionRules(clock, act)
	require.Len(t, recs, 3)
	assert.Equal(t, RuleReminderDue, recs[0].Rule)
	assert.Equal(t, RuleUpcomingStart, recs[1].Rule)
	assert.Equal(t, RuleDeadlineApproaching, recs[2].Rule)
}
