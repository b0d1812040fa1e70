package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lifesignal/internal/entity"
	"lifesignal/internal/metrics"
)

// ActionsPrefix selects the completed-actions-per-day series of an area.
const ActionsPrefix = "actions:"

// SeriesFor resolves a series reference against src. A reference is either a
// metric id or ActionsPrefix followed by an optional area id.
func SeriesFor(ctx context.Context, src entity.Source, ref string, loc *time.Location, agg metrics.Aggregation) (metrics.DailySeries, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("series reference is required")
	}

	if areaID, ok := strings.CutPrefix(ref, ActionsPrefix); ok {
		actions, err := src.ListActions(ctx, areaID)
		if err != nil {
			return nil, fmt.Errorf("list actions: %w", err)
		}
		series := metrics.ActionsPerDay(actions, loc)
		days := series.Days()
		if len(days) == 0 {
			return series, nil
		}
		// A day without completions is a real zero, not a gap.
		return series.Filled(days[0], days[len(days)-1], 0), nil
	}

	if _, found, err := entity.FindMetric(ctx, src, ref); err != nil {
		return nil, fmt.Errorf("find metric %s: %w", ref, err)
	} else if !found {
		return nil, fmt.Errorf("unknown metric %q", ref)
	}
	obs, err := src.ListMetricObservations(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list observations for %s: %w", ref, err)
	}
	return metrics.Daily(obs, loc, agg)
}

// MaxLagDays bounds both ends of a lag range. A year is the longest lead a
// daily habit series can plausibly show.
const MaxLagDays = 366

// ErrInvalidLag reports a lag outside [0, MaxLagDays].
var ErrInvalidLag = errors.New("invalid lag")

// Request describes one correlation query.
type Request struct {
	Driver      string
	Outcome     string
	Lag         int
	MaxLag      int
	Aggregation metrics.Aggregation
	Location    *time.Location
}

// Response holds the lag results of a query. Best is nil when no lag had
// enough data.
type Response struct {
	Driver  string   `json:"driver"`
	Outcome string   `json:"outcome"`
	Results []Result `json:"results"`
	Best    *Result  `json:"best,omitempty"`
}

// Validate checks the lag range.
func (r Request) Validate() error {
	if r.Lag < 0 || r.MaxLag < 0 {
		return fmt.Errorf("%w: lag and max_lag must be non-negative", ErrInvalidLag)
	}
	if r.Lag > MaxLagDays || r.MaxLag > MaxLagDays {
		return fmt.Errorf("%w: lag and max_lag must not exceed %d days", ErrInvalidLag, MaxLagDays)
	}
	return nil
}

// Run resolves both series and correlates them. With MaxLag > Lag every lag
// in [Lag, MaxLag] is scanned.
func Run(ctx context.Context, src entity.Source, req Request) (Response, error) {
	resp := Response{Driver: req.Driver, Outcome: req.Outcome}
	if err := req.Validate(); err != nil {
		return resp, err
	}

	driver, err := SeriesFor(ctx, src, req.Driver, req.Location, req.Aggregation)
	if err != nil {
		return resp, fmt.Errorf("driver: %w", err)
	}
	outcome, err := SeriesFor(ctx, src, req.Outcome, req.Location, req.Aggregation)
	if err != nil {
		return resp, fmt.Errorf("outcome: %w", err)
	}

	maxLag := req.MaxLag
	if maxLag < req.Lag {
		maxLag = req.Lag
	}
	results, best, ok := Scan(driver, outcome, req.Lag, maxLag)
	resp.Results = results
	if ok {
		resp.Best = &best
	}
	return resp, nil
}
