package correlate

import (
	"math"

	"lifesignal/internal/metrics"
)

// MinPairs is the smallest number of aligned day pairs that yields a result.
const MinPairs = 5

// Threshold separates weak from meaningful correlation.
const Threshold = 0.3

// Effect is the interpretation band of a coefficient.
type Effect string

const (
	EffectInsufficient Effect = "insufficient-data"
	EffectWeak         Effect = "weak"
	EffectPositive     Effect = "positive"
	EffectNegative     Effect = "negative"
)

// Result is the outcome of one lagged correlation.
type Result struct {
	Lag    int     `json:"lag"`
	Pairs  int     `json:"pairs"`
	R      float64 `json:"r"`
	Effect Effect  `json:"effect"`
	// Impact is round(r*100) for positive effects and 0 otherwise.
	Impact int `json:"impact,omitempty"`
}

// Sufficient reports whether enough pairs were available.
func (r Result) Sufficient() bool {
	return r.Effect != EffectInsufficient
}

// Analyze correlates driver on day d with outcome on day d+lag. Days missing
// on either side are skipped.
func Analyze(driver, outcome metrics.DailySeries, lag int) Result {
	var xs, ys []float64
	for _, day := range driver.Days() {
		y, ok := outcome[day.AddDays(lag)]
		if !ok {
			continue
		}
		x := driver[day]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	res := Result{Lag: lag, Pairs: len(xs)}
	if len(xs) < MinPairs {
		res.Effect = EffectInsufficient
		return res
	}
	res.R = pearson(xs, ys)
	res.Effect, res.Impact = interpret(res.R)
	return res
}

func interpret(r float64) (Effect, int) {
	switch {
	case r >= Threshold:
		return EffectPositive, int(math.Round(r * 100))
	case r <= -Threshold:
		return EffectNegative, 0
	default:
		return EffectWeak, 0
	}
}

// pearson returns 0 when either side has no variance.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	den := math.Sqrt(varX * varY)
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	r := cov / den
	return math.Max(-1, math.Min(1, r))
}

// Scan runs Analyze for every lag in [minLag, maxLag] and returns all results
// plus the sufficient result with the largest |r|. ok is false when no lag
// had enough pairs. The range is clamped to [0, MaxLagDays].
func Scan(driver, outcome metrics.DailySeries, minLag, maxLag int) (results []Result, best Result, ok bool) {
	if maxLag < minLag {
		minLag, maxLag = maxLag, minLag
	}
	minLag = max(minLag, 0)
	maxLag = min(maxLag, MaxLagDays)
	for lag := minLag; lag <= maxLag; lag++ {
		res := Analyze(driver, outcome, lag)
		results = append(results, res)
		if !res.Sufficient() {
			continue
		}
		if !ok || math.Abs(res.R) > math.Abs(best.R) {
			best, ok = res, true
		}
	}
	return results, best, ok
}
