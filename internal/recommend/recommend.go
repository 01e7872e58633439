// Package recommend computes the weighted blend of vector similarity,
// recency, and frequency used by the Library's recommendation scoring.
package recommend

import "math"

// Weights is the normalized {vector, recency, frequency} profile.
type Weights struct {
	Vector    float64
	Recency   float64
	Frequency float64
}

// DefaultWeights is the fallback used when normalization has nothing to
// work with.
var DefaultWeights = Weights{Vector: 0.6, Recency: 0.2, Frequency: 0.2}

const DefaultHalfLifeMs = int64(30 * 24 * 60 * 60 * 1000)

// NormalizeWeights sums the given weights and divides by the total. The
// zero-sum case falls back to DefaultWeights. The result is always
// non-negative and sums to 1 (within floating point epsilon).
func NormalizeWeights(w Weights) Weights {
	if w.Vector < 0 {
		w.Vector = 0
	}
	if w.Recency < 0 {
		w.Recency = 0
	}
	if w.Frequency < 0 {
		w.Frequency = 0
	}
	total := w.Vector + w.Recency + w.Frequency
	if total == 0 {
		return DefaultWeights
	}
	return Weights{
		Vector:    w.Vector / total,
		Recency:   w.Recency / total,
		Frequency: w.Frequency / total,
	}
}

// RecencyScore computes exp(-ln(2) * ageMs / halfLifeMs).
func RecencyScore(ageMs, halfLifeMs int64) float64 {
	if halfLifeMs <= 0 {
		halfLifeMs = DefaultHalfLifeMs
	}
	return math.Exp(-math.Ln2 * float64(ageMs) / float64(halfLifeMs))
}

// FrequencyScore computes ln(1+accessCount) / ln(1+maxAccessCount), 0 if
// maxAccessCount is 0.
func FrequencyScore(accessCount, maxAccessCount int64) float64 {
	if maxAccessCount <= 0 {
		return 0
	}
	return math.Log(1+float64(accessCount)) / math.Log(1+float64(maxAccessCount))
}

// Candidate is the minimal shape needed to compute a final recommendation
// score.
type Candidate struct {
	VectorScore  float64
	AgeMs        int64
	AccessCount  int64
}

// Score blends vector/recency/frequency per normalized weights. maxAccessCount
// is the max AccessCount across the candidate set being scored together.
func Score(c Candidate, maxAccessCount int64, halfLifeMs int64, w Weights) float64 {
	w = NormalizeWeights(w)
	recency := RecencyScore(c.AgeMs, halfLifeMs)
	frequency := FrequencyScore(c.AccessCount, maxAccessCount)
	return w.Vector*c.VectorScore + w.Recency*recency + w.Frequency*frequency
}
