package engine

import (
	"math"
	"sort"
)

// ScoreParams tunes the effective-relevance curve. Both curves are policy,
// not structural: the boost is monotonic non-decreasing and saturating,
// the recency factor monotonic non-increasing.
type ScoreParams struct {
	FreqWeight     float64 // per-retrieval log boost weight
	FreqCap        float64 // saturation ceiling for the boost
	RecencyTauDays float64 // e-folding time of the recency factor
	RecencyFloor   float64 // old memories never score below importance × floor
}

// DefaultScoreParams returns the tuning used by the maintenance sweeps.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		FreqWeight:     0.1,
		FreqCap:        2.0,
		RecencyTauDays: 90,
		RecencyFloor:   0.1,
	}
}

// FrequencyBoost grows with retrieval count and saturates at FreqCap.
func FrequencyBoost(retrievals int, p ScoreParams) float64 {
	boost := 1.0 + p.FreqWeight*math.Log1p(float64(retrievals))
	if boost > p.FreqCap {
		return p.FreqCap
	}
	return boost
}

// RecencyFactor decays exponentially with age, floored so stale memories
// keep a residual weight.
func RecencyFactor(ageDays float64, p ScoreParams) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	f := math.Exp(-ageDays / p.RecencyTauDays)
	if f < p.RecencyFloor {
		return p.RecencyFloor
	}
	return f
}

// EffectiveScore derives ranking relevance:
// importance × frequency boost × recency factor.
func EffectiveScore(importance float64, retrievals int, ageDays float64, p ScoreParams) float64 {
	return importance * FrequencyBoost(retrievals, p) * RecencyFactor(ageDays, p)
}

// ParetoThreshold returns the score value at the rank boundary implied by
// the target percentile. Convention: scores sorted descending, boundary
// index = floor(n × (1 − percentile)) clamped to [0, n−1], threshold =
// the score at that index. So percentile 0.8 over the scores 1..10 returns
// 8. Empty input returns 0; a single score returns that score.
func ParetoThreshold(scores []float64, percentile float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	// 1 − percentile is inexact in float64 (1−0.8 multiplies as
	// 1.999… for n=10); nudge up before flooring.
	idx := int(math.Floor(float64(len(sorted))*(1-percentile) + 1e-9))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
