// Package cosine implements exact cosine similarity, NaN/range-safe.
package cosine

import "math"

// Similarity returns the cosine similarity of a and b. Mismatched
// dimensions return 0 without error. A zero-magnitude vector on either side
// returns 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}

// Magnitude returns sqrt(sum(v_i^2)).
func Magnitude(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// SimilarityWithMagnitude computes cosine similarity given a's precomputed
// magnitude, avoiding recomputation when scanning many candidates against
// the same query vector.
func SimilarityWithMagnitude(a []float32, aMag float64, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || aMag == 0 {
		return 0
	}
	var dot, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		nb += bv * bv
	}
	if nb == 0 {
		return 0
	}
	score := dot / (aMag * math.Sqrt(nb))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}
