package signals

import (
	"context"
	"testing"
	"time"

	"lifesignal/internal/entity"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

func series(metricID string, values ...float64) []entity.Observation {
	out := make([]entity.Observation, len(values))
	for i, v := range values {
		out[i] = entity.Observation{MetricID: metricID, At: now.AddDate(0, 0, -(len(values) - i)), Value: v}
	}
	return out
}

func TestClassifyEmptyAreaIsStable(t *testing.T) {
	got := Classify(AreaInput{Area: entity.Area{ID: "home", Kind: entity.KindHome}}, now)
	if got.Status != StatusStable || got.Score != 0.7 {
		t.Fatalf("empty area = %s/%v, want stable/0.7", got.Status, got.Score)
	}
}

func TestClassifyHealthImproving(t *testing.T) {
	in := AreaInput{
		Area:         entity.Area{ID: "health", Kind: entity.KindHealth, Title: "Health"},
		Actions:      []entity.Action{{ID: "run", UpdatedAt: daysAgo(2)}},
		Metrics:      []entity.MetricDefinition{{ID: "steps", Direction: entity.DirectionIncrease}},
		Observations: map[string][]entity.Observation{"steps": series("steps", 60, 65)},
	}
	got := Classify(in, now)
	if got.Status != StatusImproving || got.Score != 1.0 {
		t.Fatalf("health = %s (%s), want improving", got.Status, got.Reason)
	}
}

func TestClassifyImprovingBeatsStale(t *testing.T) {
	in := AreaInput{
		Area:    entity.Area{ID: "health", Kind: entity.KindHealth},
		Actions: []entity.Action{{ID: "run", CreatedAt: daysAgo(1)}},
		Metrics: []entity.MetricDefinition{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Observations: map[string][]entity.Observation{
			"a": series("a", 1, 2),
		},
	}
	got := Classify(in, now)
	if got.Status != StatusImproving {
		t.Fatalf("status = %s, want improving even with 2/3 stale", got.Status)
	}
}

func TestClassifyAttention(t *testing.T) {
	falling := AreaInput{
		Area:         entity.Area{ID: "fin", Kind: entity.KindFinances},
		Metrics:      []entity.MetricDefinition{{ID: "savings"}},
		Observations: map[string][]entity.Observation{"savings": series("savings", 10, 8)},
	}
	if got := Classify(falling, now); got.Status != StatusAttention || got.Score != 0.2 {
		t.Fatalf("falling = %s, want attention", got.Status)
	}

	stale := AreaInput{
		Area:    entity.Area{ID: "fin", Kind: entity.KindFinances},
		Metrics: []entity.MetricDefinition{{ID: "a"}, {ID: "b"}},
		Observations: map[string][]entity.Observation{
			"a": {{MetricID: "a", At: now.AddDate(0, 0, -30), Value: 1}},
		},
	}
	if got := Classify(stale, now); got.Status != StatusAttention {
		t.Fatalf("stale = %s, want attention", got.Status)
	}
}

func TestClassifyTieFallsThrough(t *testing.T) {
	in := AreaInput{
		Area:    entity.Area{ID: "growth", Kind: entity.KindGrowth},
		Metrics: []entity.MetricDefinition{{ID: "up"}, {ID: "down"}},
		Observations: map[string][]entity.Observation{
			"up":   series("up", 1, 2),
			"down": series("down", 2, 1),
		},
	}
	if got := Classify(in, now); got.Status != StatusStable {
		t.Fatalf("tie = %s, want stable", got.Status)
	}
}

func TestClassifyUnchanged(t *testing.T) {
	in := AreaInput{
		Area:         entity.Area{ID: "career", Kind: entity.KindCareer},
		Actions:      []entity.Action{{ID: "cv", UpdatedAt: daysAgo(3)}, {ID: "old", UpdatedAt: daysAgo(20)}},
		Metrics:      []entity.MetricDefinition{{ID: "apps"}},
		Observations: map[string][]entity.Observation{"apps": series("apps", 3, 3)},
	}
	got := Classify(in, now)
	if got.Status != StatusUnchanged || got.Touched != 1 {
		t.Fatalf("got %s touched=%d, want unchanged/1", got.Status, got.Touched)
	}
}

func TestClassifyOrientsDecreaseMetrics(t *testing.T) {
	in := AreaInput{
		Area:         entity.Area{ID: "health", Kind: entity.KindHealth},
		Actions:      []entity.Action{{ID: "run", UpdatedAt: daysAgo(1)}},
		Metrics:      []entity.MetricDefinition{{ID: "weight", Direction: entity.DirectionDecrease}},
		Observations: map[string][]entity.Observation{"weight": series("weight", 82, 81)},
	}
	if got := Classify(in, now); got.Status != StatusImproving {
		t.Fatalf("falling weight with decrease goal = %s, want improving", got.Status)
	}
}

func TestAggregate(t *testing.T) {
	empty := Aggregate(nil)
	if empty.Score != 0 || empty.Label != LabelNoData {
		t.Fatalf("empty = %+v", empty)
	}

	got := Aggregate([]Weighted{
		{Status: StatusImproving, Kind: entity.KindHealth},
		{Status: StatusAttention, Kind: entity.KindCareer},
	})
	// (1.0*1.3 + 0.2*1.2) / 2.5 = 0.616
	if got.Score != 62 || got.Label != LabelFocusScattered {
		t.Fatalf("got %+v, want 62/focus scattered", got)
	}

	unknown := Aggregate([]Weighted{{Status: StatusStable, Kind: "hobbies"}})
	if unknown.Score != 70 || unknown.Label != LabelGenerallyStable {
		t.Fatalf("unknown kind = %+v", unknown)
	}
}

func TestLabelFor(t *testing.T) {
	cases := map[int]Label{
		100: LabelClearDirection,
		85:  LabelClearDirection,
		84:  LabelGenerallyStable,
		65:  LabelGenerallyStable,
		45:  LabelFocusScattered,
		44:  LabelNeedsRethinking,
		0:   LabelNeedsRethinking,
	}
	for score, want := range cases {
		if got := LabelFor(score); got != want {
			t.Errorf("LabelFor(%d) = %q, want %q", score, got, want)
		}
	}
}

func TestClassifyAllFromStore(t *testing.T) {
	store := entity.NewStore([]entity.Document{
		{
			Area:         entity.Area{ID: "health", Kind: entity.KindHealth},
			Metrics:      []entity.MetricDefinition{{ID: "steps", AreaID: "health", Direction: entity.DirectionIncrease}},
			Observations: series("steps", 60, 65),
			Actions:      []entity.Action{{ID: "run", AreaID: "health", UpdatedAt: daysAgo(2)}},
		},
		{Area: entity.Area{ID: "home", Kind: entity.KindHome}},
	})
	statuses, failed, err := ClassifyAll(context.Background(), store, now)
	if err != nil || len(failed) != 0 {
		t.Fatalf("ClassifyAll: %v %v", err, failed)
	}
	if len(statuses) != 2 || statuses[0].Status != StatusImproving || statuses[1].Status != StatusStable {
		t.Fatalf("statuses = %+v", statuses)
	}
}
