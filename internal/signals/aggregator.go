package signals

import (
	"math"

	"lifesignal/internal/entity"
)

// Label is the qualitative reading of the global score.
type Label string

const (
	LabelClearDirection  Label = "clear direction"
	LabelGenerallyStable Label = "generally stable"
	LabelFocusScattered  Label = "focus scattered"
	LabelNeedsRethinking Label = "needs rethinking"
	LabelNoData          Label = "no data"
)

var labelThresholds = []struct {
	min   int
	label Label
}{
	{85, LabelClearDirection},
	{65, LabelGenerallyStable},
	{45, LabelFocusScattered},
}

// Weighted pairs an area status with the kind used for the weight lookup.
type Weighted struct {
	Status Status
	Kind   entity.AreaKind
}

// Global is the composite score across all areas.
type Global struct {
	Score int   `json:"score"`
	Label Label `json:"label"`
	Areas int   `json:"areas"`
}

// Aggregate computes the weighted global score. Empty input yields 0 and
// LabelNoData.
func Aggregate(in []Weighted) Global {
	if len(in) == 0 {
		return Global{Score: 0, Label: LabelNoData}
	}

	var num, den float64
	for _, w := range in {
		weight := WeightFor(w.Kind)
		num += w.Status.Score() * weight
		den += weight
	}
	if den == 0 {
		return Global{Score: 0, Label: LabelNoData, Areas: len(in)}
	}

	score := int(math.Round(100 * num / den))
	return Global{Score: score, Label: LabelFor(score), Areas: len(in)}
}

// AggregateStatuses is Aggregate over classifier output.
func AggregateStatuses(statuses []AreaStatus) Global {
	in := make([]Weighted, 0, len(statuses))
	for _, s := range statuses {
		in = append(in, Weighted{Status: s.Status, Kind: s.Kind})
	}
	return Aggregate(in)
}

// LabelFor maps a score onto its label.
func LabelFor(score int) Label {
	for _, t := range labelThresholds {
		if score >= t.min {
			return t.label
		}
	}
	return LabelNeedsRethinking
}
