// Package dedup implements near-duplicate detection by cosine similarity and
// text fingerprint.
package dedup

import (
	"strings"
	"sync"

	"vellum/internal/cosine"
)

const DefaultThreshold = 0.97

// Candidate is a minimal view of a live volume needed for duplicate checks.
type Candidate struct {
	ID        string
	Embedding []float32
	Text      string
}

// Fingerprint normalizes text for exact-match duplicate detection:
// lowercase, collapse whitespace, trim.
func Fingerprint(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// Index maintains fingerprints and embeddings for fast duplicate checks
// without rescanning every volume on each add.
type Index struct {
	mu           sync.RWMutex
	threshold    float64
	byID         map[string]Candidate
	byFingerprint map[string]string // fingerprint -> id
}

func New(threshold float64) *Index {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Index{
		threshold:     threshold,
		byID:          make(map[string]Candidate),
		byFingerprint: make(map[string]string),
	}
}

func (idx *Index) Add(c Candidate) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byID[c.ID] = c
	idx.byFingerprint[Fingerprint(c.Text)] = c.ID
}

func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if c, ok := idx.byID[id]; ok {
		fp := Fingerprint(c.Text)
		if idx.byFingerprint[fp] == id {
			delete(idx.byFingerprint, fp)
		}
		delete(idx.byID, id)
	}
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool
	ExistingID  string
}

// CheckDuplicate reports whether text/embedding duplicates an existing live
// volume, either by cosine >= threshold or by fingerprint match.
func (idx *Index) CheckDuplicate(text string, embedding []float32) Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fp := Fingerprint(text)
	if id, ok := idx.byFingerprint[fp]; ok {
		return Result{IsDuplicate: true, ExistingID: id}
	}
	for id, c := range idx.byID {
		if cosine.Similarity(c.Embedding, embedding) >= idx.threshold {
			return Result{IsDuplicate: true, ExistingID: id}
		}
	}
	return Result{IsDuplicate: false}
}

// Group is a set of mutually-duplicate ids.
type Group struct {
	IDs []string
}

// FindDuplicateGroups scans all live candidates and returns groups of ids
// that are mutually duplicate under threshold (or a caller-specified
// override).
func (idx *Index) FindDuplicateGroups(threshold float64) []Group {
	if threshold <= 0 {
		threshold = idx.threshold
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.byID))
	for id := range idx.byID {
		ids = append(ids, id)
	}

	visited := make(map[string]bool)
	var groups []Group
	for i, id := range ids {
		if visited[id] {
			continue
		}
		group := []string{id}
		visited[id] = true
		for j := i + 1; j < len(ids); j++ {
			other := ids[j]
			if visited[other] {
				continue
			}
			a, b := idx.byID[id], idx.byID[other]
			if Fingerprint(a.Text) == Fingerprint(b.Text) || cosine.Similarity(a.Embedding, b.Embedding) >= threshold {
				group = append(group, other)
				visited[other] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, Group{IDs: group})
		}
	}
	return groups
}
