// Package invertedindex implements tokenization, postings lists, and Okapi
// BM25 scoring over Volume text.
package invertedindex

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// Tokenize lowercases, replaces non-word/non-space runes with spaces, splits
// on whitespace, and drops empties. It is deterministic and exposed as a
// pure function for tests.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := nonWordRe.ReplaceAllString(lowered, " ")
	fields := strings.Fields(cleaned)
	return fields
}

// Params are the BM25 tuning constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams matches Okapi BM25's common defaults.
var DefaultParams = Params{K1: 1.2, B: 0.75}

// Result is a single scored document.
type Result struct {
	ID    string
	Score float64
}

// Index is a thread-safe BM25 inverted index over document id -> text.
type Index struct {
	mu sync.RWMutex

	postings    map[string]map[string]struct{} // term -> set(docId)
	termCounts  map[string]map[string]int       // term -> (docId -> count)
	docLengths  map[string]int                  // docId -> token count
	totalTokens int
}

func New() *Index {
	return &Index{
		postings:   make(map[string]map[string]struct{}),
		termCounts: make(map[string]map[string]int),
		docLengths: make(map[string]int),
	}
}

// AddEntry tokenizes text and updates postings, term counts, and document
// length for id.
func (idx *Index) AddEntry(id, text string) {
	tokens := Tokenize(text)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docLengths[id] = len(tokens)
	idx.totalTokens += len(tokens)

	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}
	for tok, c := range counts {
		if idx.postings[tok] == nil {
			idx.postings[tok] = make(map[string]struct{})
		}
		idx.postings[tok][id] = struct{}{}
		if idx.termCounts[tok] == nil {
			idx.termCounts[tok] = make(map[string]int)
		}
		idx.termCounts[tok][id] = c
	}
}

// RemoveEntry requires the original text so co-occurring terms are
// deduplicated before removal.
func (idx *Index) RemoveEntry(id, text string) {
	tokens := Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.totalTokens -= idx.docLengths[id]
	if idx.totalTokens < 0 {
		idx.totalTokens = 0
	}
	delete(idx.docLengths, id)

	for tok := range seen {
		if docs, ok := idx.postings[tok]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(idx.postings, tok)
			}
		}
		if counts, ok := idx.termCounts[tok]; ok {
			delete(counts, id)
			if len(counts) == 0 {
				delete(idx.termCounts, tok)
			}
		}
	}
}

// Contains reports whether id is present in the term's postings list.
func (idx *Index) Contains(term, id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs, ok := idx.postings[term]
	if !ok {
		return false
	}
	_, ok = docs[id]
	return ok
}

// BM25Search tokenizes the query and scores every matching document with
// Okapi BM25. Empty index or empty query returns an empty slice without
// error.
func (idx *Index) BM25Search(query string, params Params) []Result {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return []Result{}
	}
	if params.K1 == 0 && params.B == 0 {
		params = DefaultParams
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLengths)
	if n == 0 {
		return []Result{}
	}
	var avgdl float64
	if n > 0 {
		avgdl = float64(idx.totalTokens) / float64(n)
	}

	scores := make(map[string]float64)
	seenTerms := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seenTerms[term]; dup {
			continue
		}
		seenTerms[term] = struct{}{}

		docs := idx.postings[term]
		df := len(docs)
		if df == 0 {
			continue
		}
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for docID := range docs {
			tf := float64(idx.termCounts[term][docID])
			dl := float64(idx.docLengths[docID])
			denom := tf + params.K1*(1-params.B+params.B*dl/avgdl)
			if denom == 0 {
				continue
			}
			tfNorm := tf * (params.K1 + 1) / denom
			scores[docID] += idf * tfNorm
		}
	}

	out := make([]Result, 0, len(scores))
	for id, score := range scores {
		out = append(out, Result{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Size returns the number of documents currently indexed.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLengths)
}
