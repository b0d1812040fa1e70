package goals

import (
	"fmt"
	"math"

	"lifesignal/internal/entity"
)

// DisplayStatus is the user-facing state of a goal.
type DisplayStatus string

const (
	StatusOnTrack       DisplayStatus = "on-track"
	StatusCompleted     DisplayStatus = "completed"
	StatusAtRisk        DisplayStatus = "at-risk"
	StatusNotStarted    DisplayStatus = "not-started"
	StatusNotConfigured DisplayStatus = "not-configured"
)

// Input is one goal plus the context needed to score it.
type Input struct {
	Goal entity.Goal
	// Current is the bound metric's current value, if known.
	Current *float64
	// LinkedActions counts non-canceled actions pointing at the goal.
	LinkedActions int
	// MetricMissing marks a goal whose metric id matches no definition.
	MetricMissing bool
}

// Progress is the evaluation result for one goal.
type Progress struct {
	GoalID        string          `json:"goal_id"`
	AreaID        string          `json:"area_id,omitempty"`
	Title         string          `json:"title,omitempty"`
	Kind          entity.GoalKind `json:"kind"`
	MetricID      string          `json:"metric_id,omitempty"`
	Percent       float64         `json:"progress_percent"`
	Status        DisplayStatus   `json:"status"`
	Reason        string          `json:"reason"`
	Current       *float64        `json:"current,omitempty"`
	LinkedActions int             `json:"linked_actions"`
	// Error is set when the goal's data could not be read.
	Error string `json:"error,omitempty"`
}

// Evaluate scores a goal. It never fails: bad configuration degrades to a
// status that says so.
func Evaluate(in Input) Progress {
	g := in.Goal
	out := Progress{
		GoalID:        g.ID,
		AreaID:        g.AreaID,
		Title:         g.Title,
		Kind:          g.Kind,
		MetricID:      g.MetricID,
		Current:       in.Current,
		LinkedActions: in.LinkedActions,
	}

	switch g.Kind {
	case entity.GoalDirectional:
		out.Status = StatusOnTrack
		out.Reason = "directional goal, not measured"
		return out
	case entity.GoalStrategic:
		if g.MetricID == "" {
			out.Status = StatusNotConfigured
			out.Reason = "metric-bound goal has no metric configured"
			return out
		}
		return metricProgress(in, out)
	case entity.GoalTactical:
		if g.MetricID != "" {
			return metricProgress(in, out)
		}
		return manualProgress(g, out)
	default:
		out.Status = StatusNotConfigured
		out.Reason = fmt.Sprintf("unknown goal kind %q", g.Kind)
		return out
	}
}

func metricProgress(in Input, out Progress) Progress {
	g := in.Goal
	if in.MetricMissing {
		out.Current = nil
		out.Status = StatusNotConfigured
		out.Reason = fmt.Sprintf("bound metric %s does not exist", g.MetricID)
		return out
	}
	if g.Start == nil || g.Target == nil {
		out.Status = StatusNotStarted
		out.Reason = "start or target value not configured"
		return out
	}
	start, target := *g.Start, *g.Target

	if start == target {
		out.Percent = 100
		out.Status = StatusCompleted
		out.Reason = "start equals target"
		return out
	}
	if in.Current == nil {
		out.Status = zeroStatus(in.LinkedActions)
		out.Reason = fmt.Sprintf("no value recorded for %s yet", g.MetricID)
		return out
	}

	out.Percent = percentToTarget(start, target, *in.Current)
	switch {
	case out.Percent >= 100:
		out.Status = StatusCompleted
		out.Reason = fmt.Sprintf("target %s reached", formatValue(target))
	case out.Percent == 0:
		out.Status = zeroStatus(in.LinkedActions)
		if out.Status == StatusAtRisk {
			out.Reason = fmt.Sprintf("%d linked action(s) but no measurable progress", in.LinkedActions)
		} else {
			out.Reason = "no progress and no linked actions"
		}
	default:
		out.Status = StatusOnTrack
		out.Reason = fmt.Sprintf("%s%% of the way from %s to %s", formatValue(out.Percent), formatValue(start), formatValue(target))
	}
	return out
}

func manualProgress(g entity.Goal, out Progress) Progress {
	if g.ManualProgress == nil {
		out.Status = StatusNotStarted
		out.Reason = "manual estimate not declared"
		return out
	}
	out.Percent = clamp(*g.ManualProgress, 0, 100)
	switch {
	case out.Percent >= 100:
		out.Status = StatusCompleted
	case out.Percent == 0:
		out.Status = StatusNotStarted
	default:
		out.Status = StatusOnTrack
	}
	out.Reason = fmt.Sprintf("manual estimate: %s%%", formatValue(out.Percent))
	return out
}

func zeroStatus(linked int) DisplayStatus {
	if linked > 0 {
		return StatusAtRisk
	}
	return StatusNotStarted
}

// percentToTarget works for both increasing and decreasing targets.
func percentToTarget(start, target, current float64) float64 {
	progress := (current - start) / (target - start)
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return 0
	}
	return clamp(progress*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.4g", v)
}
