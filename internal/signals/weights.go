package signals

import "lifesignal/internal/entity"

// DefaultWeight applies to area kinds missing from AreaWeights.
const DefaultWeight = 1.0

// AreaWeights is the fixed importance of each area kind in the global score.
var AreaWeights = map[entity.AreaKind]float64{
	entity.KindHealth:        1.3,
	entity.KindCareer:        1.2,
	entity.KindFinances:      1.2,
	entity.KindRelationships: 1.1,
}

// WeightFor returns the weight of an area kind.
func WeightFor(kind entity.AreaKind) float64 {
	if w, ok := AreaWeights[kind]; ok {
		return w
	}
	return DefaultWeight
}
