package alerts

import (
	"fmt"
	"time"

	"lifesignal/internal/entity"
	"lifesignal/internal/signals"
)

func displayName(id, title string) string {
	if title != "" {
		return title
	}
	return id
}

// FormatReminder formats a reminder notification.
func FormatReminder(act entity.Action) (title, message string) {
	title = "⏰ Reminder"
	message = displayName(act.ID, act.Title)
	return title, message
}

// FormatUpcoming formats an upcoming-start notification.
func FormatUpcoming(act entity.Action, until time.Duration) (title, message string) {
	minutes := int(until.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	title = "🗓️ Starting soon"
	message = fmt.Sprintf("%s starts in %d min", displayName(act.ID, act.Title), minutes)
	return title, message
}

// FormatDeadline formats a deadline notification for a day difference of
// 1 (tomorrow), 0 (today) or less (overdue).
func FormatDeadline(act entity.Action, diffDays int) (title, message string) {
	name := displayName(act.ID, act.Title)
	switch {
	case diffDays < 0:
		title = "⚠️ Overdue"
		message = fmt.Sprintf("%s was due %d day(s) ago", name, -diffDays)
	case diffDays == 0:
		title = "📌 Due today"
		message = fmt.Sprintf("%s is due today", name)
	default:
		title = "📌 Due tomorrow"
		message = fmt.Sprintf("%s is due tomorrow", name)
	}
	return title, message
}

// FormatAreaDegraded formats an area-degraded notification.
func FormatAreaDegraded(status signals.AreaStatus) (title, message string) {
	title = "📉 Area needs attention"
	message = fmt.Sprintf("%s: %s", displayName(status.AreaID, status.Title), status.Reason)
	return title, message
}

// FormatMetricUnupdated formats a missing daily metric nudge.
func FormatMetricUnupdated(def entity.MetricDefinition) (title, message string) {
	title = "📝 Log today's value"
	message = fmt.Sprintf("%s has no entry for today", displayName(def.ID, def.Title))
	return title, message
}
