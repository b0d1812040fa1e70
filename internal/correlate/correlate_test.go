package correlate

import (
	"context"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesignal/internal/entity"
	"lifesignal/internal/metrics"
)

var day0 = civil.Date{Year: 2026, Month: 9, Day: 1}

func seriesOf(offset int, values ...float64) metrics.DailySeries {
	s := make(metrics.DailySeries)
	for i, v := range values {
		s[day0.AddDays(offset+i)] = v
	}
	return s
}

func TestAnalyzeInsufficientNeverNaN(t *testing.T) {
	res := Analyze(seriesOf(0, 1, 2, 3, 4), seriesOf(0, 1, 2, 3, 4), 0)
	assert.Equal(t, EffectInsufficient, res.Effect)
	assert.Equal(t, 4, res.Pairs)
	assert.False(t, math.IsNaN(res.R))
	assert.False(t, res.Sufficient())
}

func TestAnalyzeLagShift(t *testing.T) {
	driver := seriesOf(0, 1, 2, 3, 4, 5, 6)
	// outcome follows driver one day later
	outcome := seriesOf(1, 2, 4, 6, 8, 10, 12)

	res := Analyze(driver, outcome, 1)
	require.Equal(t, 6, res.Pairs)
	assert.InDelta(t, 1.0, res.R, 1e-9)
	assert.Equal(t, EffectPositive, res.Effect)
	assert.Equal(t, 100, res.Impact)

	unshifted := Analyze(driver, outcome, 0)
	assert.Equal(t, 5, unshifted.Pairs)
}

func TestAnalyzeNegativeAndWeak(t *testing.T) {
	neg := Analyze(seriesOf(0, 1, 2, 3, 4, 5), seriesOf(0, 5, 4, 3, 2, 1), 0)
	assert.Equal(t, EffectNegative, neg.Effect)
	assert.InDelta(t, -1.0, neg.R, 1e-9)
	assert.Zero(t, neg.Impact)

	flat := Analyze(seriesOf(0, 1, 2, 3, 4, 5), seriesOf(0, 7, 7, 7, 7, 7), 0)
	assert.Equal(t, EffectWeak, flat.Effect)
	assert.Zero(t, flat.R)
}

func TestAnalyzeSkipsGaps(t *testing.T) {
	driver := seriesOf(0, 1, 2, 3, 4, 5, 6, 7)
	outcome := seriesOf(0, 1, 2, 3, 4, 5, 6, 7)
	delete(outcome, day0.AddDays(2))
	delete(outcome, day0.AddDays(5))

	res := Analyze(driver, outcome, 0)
	assert.Equal(t, 5, res.Pairs)
	assert.Equal(t, EffectPositive, res.Effect)
}

func TestScanPicksStrongestLag(t *testing.T) {
	driver := seriesOf(0, 1, 5, 2, 8, 3, 9, 4, 7)
	outcome := seriesOf(2, 1, 5, 2, 8, 3, 9, 4, 7)

	results, best, ok := Scan(driver, outcome, 0, 3)
	require.True(t, ok)
	assert.Len(t, results, 4)
	assert.Equal(t, 2, best.Lag)
	assert.InDelta(t, 1.0, best.R, 1e-9)
}

func TestScanNoSufficientLag(t *testing.T) {
	_, _, ok := Scan(seriesOf(0, 1, 2), seriesOf(0, 1, 2), 0, 2)
	assert.False(t, ok)
}

func TestScanClampsLagRange(t *testing.T) {
	results, _, _ := Scan(seriesOf(0, 1, 2, 3), seriesOf(0, 1, 2, 3), -5, 1_000_000)
	require.Len(t, results, MaxLagDays+1)
	assert.Equal(t, 0, results[0].Lag)
	assert.Equal(t, MaxLagDays, results[len(results)-1].Lag)
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Lag: 0, MaxLag: MaxLagDays}.Validate())
	for _, req := range []Request{
		{Lag: -1},
		{MaxLag: -1},
		{Lag: MaxLagDays + 1},
		{MaxLag: 1_000_000_000},
	} {
		assert.ErrorIs(t, req.Validate(), ErrInvalidLag, "%+v", req)
	}

	_, err := Run(context.Background(), entity.NewStore(nil), Request{Driver: "a", Outcome: "b", MaxLag: 1_000_000_000})
	assert.ErrorIs(t, err, ErrInvalidLag)
}

func TestRunWithActionsDriver(t *testing.T) {
	loc := time.UTC
	var actions []entity.Action
	var observations []entity.Observation
	for i := 0; i < 8; i++ {
		at := time.Date(2026, 9, 1+i, 20, 0, 0, 0, loc)
		// even days get a workout, odd days none
		if i%2 == 0 {
			done := at
			actions = append(actions, entity.Action{ID: "w" + string(rune('a'+i)), AreaID: "health", Completed: true, CompletedAt: &done})
		}
		mood := 4.0
		if i%2 == 1 {
			// mood the day after a workout is high
			mood = 8
		}
		observations = append(observations, entity.Observation{MetricID: "mood", At: at, Value: mood})
	}
	store := entity.NewStore([]entity.Document{{
		Area:         entity.Area{ID: "health", Kind: entity.KindHealth},
		Metrics:      []entity.MetricDefinition{{ID: "mood", AreaID: "health"}},
		Observations: observations,
		Actions:      actions,
	}})

	resp, err := Run(context.Background(), store, Request{
		Driver:   "actions:health",
		Outcome:  "mood",
		Lag:      1,
		Location: loc,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Best)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Best.Lag)
	assert.Equal(t, 7, resp.Best.Pairs)
	assert.Equal(t, EffectPositive, resp.Best.Effect)
}

func TestRunUnknownMetric(t *testing.T) {
	store := entity.NewStore(nil)
	_, err := Run(context.Background(), store, Request{Driver: "nope", Outcome: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric "nope"`)
}
