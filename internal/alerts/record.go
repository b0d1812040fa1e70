package alerts

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Severity is the kind of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rule names the rule that produced an alert. It is also the first segment
// of every dedup key.
type Rule string

const (
	RuleReminderDue         Rule = "reminder-due"
	RuleUpcomingStart       Rule = "upcoming-start"
	RuleDeadlineApproaching Rule = "deadline-approaching"
	RuleAreaDegraded        Rule = "area-degraded"
	RuleMetricUnupdated     Rule = "metric-unupdated"
)

// Rules lists every rule in evaluation order.
var Rules = []Rule{
	RuleReminderDue,
	RuleUpcomingStart,
	RuleDeadlineApproaching,
	RuleAreaDegraded,
	RuleMetricUnupdated,
}

// Record is one emitted alert.
type Record struct {
	ID       string    `json:"id"`
	Rule     Rule      `json:"rule"`
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Link     string    `json:"link,omitempty"`
	SourceID string    `json:"source_id"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
}

func newRecord(rule Rule, sev Severity, sourceID, key string, now time.Time) Record {
	return Record{
		ID:       uuid.NewString(),
		Rule:     rule,
		Severity: sev,
		SourceID: sourceID,
		Key:      key,
		At:       now,
	}
}

// Key builds the deterministic dedup key "rule|entity|bucket".
func Key(rule Rule, entityID, bucket string) string {
	return strings.Join([]string{string(rule), entityID, bucket}, "|")
}

func dayBucket(d civil.Date) string {
	return d.String()
}

func unixBucket(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func intBucket(n int) string {
	return strconv.Itoa(n)
}
