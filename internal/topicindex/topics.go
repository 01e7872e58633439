// Package topicindex implements the hierarchical topic tree: auto-created
// ancestors, symmetric co-occurrence edges, and merges.
package topicindex

import (
	"sort"
	"strings"
	"sync"
)

type node struct {
	path    string
	ids     map[string]struct{}
	parent  string
	child   map[string]struct{}
}

func newNode(path, parent string) *node {
	return &node{path: path, ids: make(map[string]struct{}), parent: parent, child: make(map[string]struct{})}
}

// pairKey canonicalizes an unordered pair of topics for the co-occurrence map.
func pairKey(a, b string) (string, string) {
	if a > b {
		a, b = b, a
	}
	return a, b
}

// Index is a thread-safe hierarchical topic tree.
type Index struct {
	mu    sync.RWMutex
	nodes map[string]*node
	// coOccurrence[a][b] = count, stored canonically with a < b.
	coOccurrence map[string]map[string]int
}

func New() *Index {
	return &Index{
		nodes:        make(map[string]*node),
		coOccurrence: make(map[string]map[string]int),
	}
}

// ensureNode creates path and every ancestor idempotently, wiring parent/child
// links. Must be called with the write lock held.
func (idx *Index) ensureNode(path string) *node {
	if n, ok := idx.nodes[path]; ok {
		return n
	}
	parent := parentOf(path)
	n := newNode(path, parent)
	idx.nodes[path] = n
	if parent != "" {
		p := idx.ensureNode(parent)
		p.child[path] = struct{}{}
	}
	return n
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func ancestorsOf(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

// AddEntry registers id under every topic in topics, auto-creating ancestors
// and recording the leaf id at each ancestor. It also increments
// co-occurrence counts for every unordered pair of topics on this entry.
func (idx *Index) AddEntry(id string, topics []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	leaves := make(map[string]struct{})
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		leaves[t] = struct{}{}
		for _, anc := range ancestorsOf(t) {
			n := idx.ensureNode(anc)
			n.ids[id] = struct{}{}
		}
	}

	leafList := make([]string, 0, len(leaves))
	for t := range leaves {
		leafList = append(leafList, t)
	}
	sort.Strings(leafList)
	for i := 0; i < len(leafList); i++ {
		for j := i + 1; j < len(leafList); j++ {
			a, b := pairKey(leafList[i], leafList[j])
			if idx.coOccurrence[a] == nil {
				idx.coOccurrence[a] = make(map[string]int)
			}
			idx.coOccurrence[a][b]++
		}
	}
}

// RemoveEntry removes id from every topic it belongs to and symmetrically
// decrements co-occurrence counts.
func (idx *Index) RemoveEntry(id string, topics []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	leaves := make(map[string]struct{})
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		leaves[t] = struct{}{}
		for _, anc := range ancestorsOf(t) {
			if n, ok := idx.nodes[anc]; ok {
				delete(n.ids, id)
			}
		}
	}

	leafList := make([]string, 0, len(leaves))
	for t := range leaves {
		leafList = append(leafList, t)
	}
	sort.Strings(leafList)
	for i := 0; i < len(leafList); i++ {
		for j := i + 1; j < len(leafList); j++ {
			a, b := pairKey(leafList[i], leafList[j])
			if counts, ok := idx.coOccurrence[a]; ok {
				counts[b]--
				if counts[b] <= 0 {
					delete(counts, b)
				}
				if len(counts) == 0 {
					delete(idx.coOccurrence, a)
				}
			}
		}
	}
}

// GetEntries returns the ids registered at path (including those only
// present via descendants that were added under it).
func (idx *Index) GetEntries(path string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[path]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.ids))
	for id := range n.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetChildren returns the direct child topic paths of path.
func (idx *Index) GetChildren(path string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[path]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.child))
	for c := range n.child {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GetAllTopics returns every known topic path, including auto-created
// ancestors.
func (idx *Index) GetAllTopics() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.nodes))
	for p := range idx.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RelatedTopic is a co-occurring topic and its count.
type RelatedTopic struct {
	Topic string
	Count int
}

// GetRelatedTopics returns topics co-occurring with t, sorted by count desc
// then topic asc.
func (idx *Index) GetRelatedTopics(t string) []RelatedTopic {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := []RelatedTopic{}
	for a, counts := range idx.coOccurrence {
		for b, c := range counts {
			if a == t {
				out = append(out, RelatedTopic{Topic: b, Count: c})
			} else if b == t {
				out = append(out, RelatedTopic{Topic: a, Count: c})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// CoOccurrence returns the symmetric co-occurrence count between t1 and t2.
func (idx *Index) CoOccurrence(t1, t2 string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, b := pairKey(t1, t2)
	if counts, ok := idx.coOccurrence[a]; ok {
		return counts[b]
	}
	return 0
}

// MergeTopic moves all ids from `from` to `to`, transfers co-occurrence
// edges by adding counts, and leaves `from` with zero entries. Idempotent
// when from == to.
func (idx *Index) MergeTopic(from, to string) {
	if from == to {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fromNode, ok := idx.nodes[from]
	if !ok {
		return
	}
	toNode := idx.ensureNode(to)
	for id := range fromNode.ids {
		toNode.ids[id] = struct{}{}
	}
	fromNode.ids = make(map[string]struct{})

	for a, counts := range idx.coOccurrence {
		for b, c := range counts {
			if a != from && b != from {
				continue
			}
			other := b
			if a == from {
				other = b
			}
			if b == from {
				other = a
			}
			if other == to {
				continue
			}
			na, nb := pairKey(to, other)
			if idx.coOccurrence[na] == nil {
				idx.coOccurrence[na] = make(map[string]int)
			}
			idx.coOccurrence[na][nb] += c
		}
	}
	for b := range idx.coOccurrence[from] {
		delete(idx.coOccurrence[from], b)
	}
	delete(idx.coOccurrence, from)
	for a := range idx.coOccurrence {
		delete(idx.coOccurrence[a], from)
	}
}

// StopwordsForAutoExtraction is a small list used by callers implementing
// topic auto-extraction from text when no explicit topic metadata is
// present.
var StopwordsForAutoExtraction = map[string]struct{}{
	"the": {}, "is": {}, "at": {}, "of": {}, "on": {}, "and": {}, "a": {}, "to": {}, "in": {}, "for": {},
}
