package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"lifesignal/internal/entity"
)

// Aggregation folds several observations on one calendar day into one value.
type Aggregation string

const (
	AggLast Aggregation = "last"
	AggSum  Aggregation = "sum"
	AggMean Aggregation = "mean"
)

// ParseAggregation accepts last, sum or mean; empty means last.
func ParseAggregation(value string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(value))) {
	case "", AggLast:
		return AggLast, nil
	case AggSum:
		return AggSum, nil
	case AggMean:
		return AggMean, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q (want last, sum or mean)", value)
	}
}

// DailySeries holds at most one value per calendar day. Missing days are gaps.
type DailySeries map[civil.Date]float64

// Days returns the series' days in ascending order.
func (s DailySeries) Days() []civil.Date {
	days := make([]civil.Date, 0, len(s))
	for d := range s {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Filled returns a copy of s where every day in [from, to] without a value
// holds v.
func (s DailySeries) Filled(from, to civil.Date, v float64) DailySeries {
	out := make(DailySeries, len(s))
	for d, val := range s {
		out[d] = val
	}
	for d := from; !d.After(to); d = d.AddDays(1) {
		if _, ok := out[d]; !ok {
			out[d] = v
		}
	}
	return out
}

// Daily aggregates observations into calendar days in loc.
func Daily(obs []entity.Observation, loc *time.Location, agg Aggregation) (DailySeries, error) {
	if loc == nil {
		loc = time.UTC
	}
	canon, err := Canonicalize(obs)
	if err != nil {
		return nil, err
	}

	series := make(DailySeries)
	counts := make(map[civil.Date]int)
	for _, o := range canon {
		day := civil.DateOf(o.At.In(loc))
		switch agg {
		case AggSum, AggMean:
			series[day] += o.Value
		default:
			series[day] = o.Value
		}
		counts[day]++
	}
	if agg == AggMean {
		for day, n := range counts {
			series[day] /= float64(n)
		}
	}
	return series, nil
}

// ActionsPerDay counts completed actions per calendar day of completion.
func ActionsPerDay(actions []entity.Action, loc *time.Location) DailySeries {
	if loc == nil {
		loc = time.UTC
	}
	series := make(DailySeries)
	for _, a := range actions {
		if !a.Completed || a.CompletedAt == nil {
			continue
		}
		series[civil.DateOf(a.CompletedAt.In(loc))]++
	}
	return series
}

// ObservedOn reports whether any observation falls on day in loc.
func ObservedOn(obs []entity.Observation, day civil.Date, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	for _, o := range obs {
		if civil.DateOf(o.At.In(loc)) == day {
			return true
		}
	}
	return false
}
