package goals

import (
	"context"
	"fmt"
	"sort"

	"lifesignal/internal/entity"
	"lifesignal/internal/metrics"
)

// EvaluateAll scores every goal in src, ordered by area then goal id.
func EvaluateAll(ctx context.Context, src entity.Source) ([]Progress, error) {
	goals, err := src.ListGoals(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	actions, err := src.ListActions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	linked := make(map[string]int)
	for _, act := range actions {
		if act.GoalID == "" || act.Canceled {
			continue
		}
		linked[act.GoalID]++
	}

	out := make([]Progress, 0, len(goals))
	for _, g := range goals {
		in := Input{Goal: g, LinkedActions: linked[g.ID]}
		current, found, err := CurrentValue(ctx, src, g)
		if err != nil {
			// A read failure degrades this goal to its cached value.
			in.Current = g.Current
			p := Evaluate(in)
			p.Error = err.Error()
			out = append(out, p)
			continue
		}
		in.Current = current
		in.MetricMissing = !found
		out = append(out, Evaluate(in))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AreaID != out[j].AreaID {
			return out[i].AreaID < out[j].AreaID
		}
		return out[i].GoalID < out[j].GoalID
	})
	return out, nil
}

// CurrentValue resolves a goal's current value: the latest observation of
// its metric, then the cached value on the goal. found is false when the goal
// names a metric that is not defined anywhere in src.
func CurrentValue(ctx context.Context, src entity.Source, g entity.Goal) (current *float64, found bool, err error) {
	if g.MetricID == "" {
		return g.Current, true, nil
	}
	if _, ok, err := entity.FindMetric(ctx, src, g.MetricID); err != nil {
		return nil, false, fmt.Errorf("find metric %s: %w", g.MetricID, err)
	} else if !ok {
		return nil, false, nil
	}
	obs, err := src.ListMetricObservations(ctx, g.MetricID)
	if err != nil {
		return nil, true, fmt.Errorf("list observations for %s: %w", g.MetricID, err)
	}
	latest, ok, err := metrics.Latest(obs)
	if err != nil || !ok {
		// Malformed or empty history falls back to the cached value.
		return g.Current, true, nil
	}
	v := latest.Value
	return &v, true, nil
}
