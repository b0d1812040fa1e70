package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"lifesignal/internal/entity"
)

// ErrMalformedObservation reports input that violates the caller contract:
// a zero timestamp, a non-finite value, or observations of mixed metrics.
var ErrMalformedObservation = errors.New("malformed observation")

// Canonicalize returns observations sorted ascending by timestamp with exact
// timestamp ties collapsed. When several observations share a timestamp the
// one that appears last in the input wins.
func Canonicalize(obs []entity.Observation) ([]entity.Observation, error) {
	if len(obs) == 0 {
		return nil, nil
	}
	metricID := obs[0].MetricID
	for i, o := range obs {
		if o.At.IsZero() {
			return nil, fmt.Errorf("%w: observation %d has no timestamp", ErrMalformedObservation, i)
		}
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, fmt.Errorf("%w: observation %d has non-finite value", ErrMalformedObservation, i)
		}
		if o.MetricID != metricID {
			return nil, fmt.Errorf("%w: mixed metrics %q and %q", ErrMalformedObservation, metricID, o.MetricID)
		}
	}

	sorted := make([]entity.Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	out := sorted[:0]
	for _, o := range sorted {
		if n := len(out); n > 0 && out[n-1].At.Equal(o.At) {
			out[n-1] = o
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Latest returns the most recent observation after canonicalization.
func Latest(obs []entity.Observation) (entity.Observation, bool, error) {
	canon, err := Canonicalize(obs)
	if err != nil {
		return entity.Observation{}, false, err
	}
	if len(canon) == 0 {
		return entity.Observation{}, false, nil
	}
	return canon[len(canon)-1], true, nil
}
