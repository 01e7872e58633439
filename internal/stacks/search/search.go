// Package search implements StacksSearch: vector, BM25 text, and hybrid
// retrieval over a stacks.Stacks, plus the Query DSL parser.
package search

import (
	"sort"
	"strings"
	"time"

	"vellum/internal/cosine"
	"vellum/internal/invertedindex"
	"vellum/internal/metadataindex"
	"vellum/internal/stacks"
	"vellum/internal/volume"
)

// DefaultAlpha is the hybrid blend weight applied to the vector score; BM25
// receives (1-DefaultAlpha).
const DefaultAlpha = 0.6

// Hit is a single scored search result.
type Hit struct {
	Volume volume.Volume
	Score  float64
}

// Options bounds and filters a search call.
type Options struct {
	MaxResults          int
	SimilarityThreshold float64
	MetadataFilters     []metadataindex.Filter
	TopicFilters        []string
	DateAfter           *time.Time
	DateBefore          *time.Time
	// Alpha is the hybrid blend weight; nil means unset and defaults to
	// DefaultAlpha in Hybrid. A pointer distinguishes an explicit 0 (pure
	// BM25, vector score contributes nothing) from "not specified", which
	// a bare float64 cannot: Go zero-values float64 to 0, so a struct
	// literal that never sets Alpha would be indistinguishable from one
	// that deliberately sets Alpha: 0.
	Alpha *float64
}

// Search wraps a stacks.Stacks with the collaborating indices needed for
// retrieval.
type Search struct {
	stacks *stacks.Stacks
}

func New(s *stacks.Stacks) *Search {
	return &Search{stacks: s}
}

func (s *Search) candidateIDs(opts Options) map[string]bool {
	all := s.stacks.GetAll()
	out := make(map[string]bool, len(all))
	for _, v := range all {
		if !matchesFilters(v, opts) {
			continue
		}
		out[v.ID] = true
	}
	return out
}

func matchesFilters(v volume.Volume, opts Options) bool {
	if len(opts.MetadataFilters) > 0 && !metadataindex.MatchesAll(v.Metadata, opts.MetadataFilters) {
		return false
	}
	if len(opts.TopicFilters) > 0 {
		found := false
		for _, want := range opts.TopicFilters {
			for _, have := range v.Topics {
				if have == want || strings.HasPrefix(have, want+"/") {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if opts.DateAfter != nil && v.Timestamp < opts.DateAfter.UnixMilli() {
		return false
	}
	if opts.DateBefore != nil && v.Timestamp > opts.DateBefore.UnixMilli() {
		return false
	}
	return true
}

// Vector runs exact cosine search against the MagnitudeCache, filters
// first, sorts descending, truncates to MaxResults, and bumps access stats
// on every returned volume.
func (s *Search) Vector(query []float32, opts Options) []Hit {
	candidates := s.candidateIDs(opts)
	queryMag := cosine.Magnitude(query)

	var hits []Hit
	for _, v := range s.stacks.GetAll() {
		if !candidates[v.ID] {
			continue
		}
		mag, ok := s.stacks.Magnitude().Get(v.ID)
		if !ok {
			mag = cosine.Magnitude(v.Embedding)
		}
		score := cosineWithMagnitudes(query, queryMag, v.Embedding, mag)
		if score < opts.SimilarityThreshold {
			continue
		}
		hits = append(hits, Hit{Volume: v, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Volume.Timestamp > hits[j].Volume.Timestamp
	})
	hits = truncate(hits, opts.MaxResults)

	for _, h := range hits {
		s.stacks.BumpAccess(h.Volume.ID)
	}
	return hits
}

func cosineWithMagnitudes(a []float32, aMag float64, b []float32, bMag float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) || aMag == 0 || bMag == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	sim := dot / (aMag * bMag)
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// Text delegates to the InvertedIndex's BM25 ranking, then applies filters.
func (s *Search) Text(query string, params invertedindex.Params, opts Options) []Hit {
	candidates := s.candidateIDs(opts)
	results := s.stacks.Inverted().BM25Search(query, params)

	var hits []Hit
	for _, r := range results {
		if !candidates[r.ID] {
			continue
		}
		v, ok := s.stacks.GetByID(r.ID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{Volume: v, Score: r.Score})
	}
	hits = truncate(hits, opts.MaxResults)
	return hits
}

// Hybrid runs both vector and text search, normalizes each result set's
// scores to [0,1] by its own max, and blends score = alpha*vector +
// (1-alpha)*bm25. A side missing an id contributes 0. Ties break by
// timestamp descending.
func (s *Search) Hybrid(query []float32, queryText string, opts Options) []Hit {
	alpha := DefaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	vectorHits := s.Vector(query, Options{MetadataFilters: opts.MetadataFilters, TopicFilters: opts.TopicFilters, DateAfter: opts.DateAfter, DateBefore: opts.DateBefore})
	textHits := s.Text(queryText, invertedindex.DefaultParams, Options{MetadataFilters: opts.MetadataFilters, TopicFilters: opts.TopicFilters, DateAfter: opts.DateAfter, DateBefore: opts.DateBefore})

	vectorScores, vMax := scoreMap(vectorHits)
	textScores, tMax := scoreMap(textHits)

	byID := make(map[string]volume.Volume)
	for _, h := range vectorHits {
		byID[h.Volume.ID] = h.Volume
	}
	for _, h := range textHits {
		byID[h.Volume.ID] = h.Volume
	}

	var hits []Hit
	for id, v := range byID {
		vs := normalized(vectorScores[id], vMax)
		ts := normalized(textScores[id], tMax)
		blended := alpha*vs + (1-alpha)*ts
		hits = append(hits, Hit{Volume: v, Score: blended})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Volume.Timestamp > hits[j].Volume.Timestamp
	})
	return truncate(hits, opts.MaxResults)
}

func scoreMap(hits []Hit) (map[string]float64, float64) {
	m := make(map[string]float64, len(hits))
	max := 0.0
	for _, h := range hits {
		m[h.Volume.ID] = h.Score
		if h.Score > max {
			max = h.Score
		}
	}
	return m, max
}

func normalized(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max
}

func truncate(hits []Hit, max int) []Hit {
	if max <= 0 || len(hits) <= max {
		return hits
	}
	return hits[:max]
}
