// Package shelf implements Shelf: a named projection of the Library that
// transparently scopes writes and reads to a single metadata.shelf value.
package shelf

import (
	"context"

	"vellum/internal/dedup"
	"vellum/internal/librarian"
	"vellum/internal/library"
	"vellum/internal/metadataindex"
	"vellum/internal/stacks/search"
	"vellum/internal/volume"
)

// Shelf scopes a *library.Library to a single shelf name, adding
// metadata.shelf=<name> on every write and a shelf=<name> filter on every
// read. SearchGlobal escapes the filter for callers that need it.
type Shelf struct {
	lib  *library.Library
	name string
}

// New wraps lib with a named shelf projection.
func New(lib *library.Library, name string) *Shelf {
	return &Shelf{lib: lib, name: name}
}

func (s *Shelf) Name() string { return s.name }

func (s *Shelf) filter() metadataindex.Filter {
	return metadataindex.Filter{Key: volume.MetaShelf, Mode: metadataindex.Eq, Value: s.name}
}

func (s *Shelf) withShelfMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[volume.MetaShelf] = s.name
	return out
}

// Add stamps metadata.shelf=<name> before delegating to the Library.
func (s *Shelf) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	return s.lib.Add(ctx, text, s.withShelfMetadata(metadata))
}

// AddBatch stamps every entry's metadata with metadata.shelf=<name>.
func (s *Shelf) AddBatch(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error) {
	stamped := make([]map[string]string, len(texts))
	for i := range texts {
		var md map[string]string
		if i < len(metadatas) {
			md = metadatas[i]
		}
		stamped[i] = s.withShelfMetadata(md)
	}
	return s.lib.AddBatch(ctx, texts, stamped)
}

// Search runs vector search scoped to this shelf.
func (s *Shelf) Search(ctx context.Context, queryText string, opts search.Options) ([]search.Hit, error) {
	opts.MetadataFilters = append(opts.MetadataFilters, s.filter())
	return s.lib.Search(ctx, queryText, opts)
}

// TextSearch runs BM25 search scoped to this shelf.
func (s *Shelf) TextSearch(ctx context.Context, queryText string, opts search.Options) []search.Hit {
	opts.MetadataFilters = append(opts.MetadataFilters, s.filter())
	return s.lib.TextSearch(ctx, queryText, opts)
}

// AdvancedSearch runs the Query DSL search scoped to this shelf.
func (s *Shelf) AdvancedSearch(ctx context.Context, dsl string, opts search.Options) ([]search.Hit, error) {
	opts.MetadataFilters = append(opts.MetadataFilters, s.filter())
	return s.lib.AdvancedSearch(ctx, dsl, opts)
}

// SearchGlobal runs vector search across every shelf, escaping the
// shelf-scoping filter this type otherwise applies.
func (s *Shelf) SearchGlobal(ctx context.Context, queryText string, opts search.Options) ([]search.Hit, error) {
	return s.lib.Search(ctx, queryText, opts)
}

// Recommend scopes recommendation candidates to this shelf.
func (s *Shelf) Recommend(ctx context.Context, queryText string, opts library.RecommendOptions) ([]search.Hit, error) {
	hits, err := s.lib.Recommend(ctx, queryText, opts)
	if err != nil {
		return nil, err
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.Volume.Metadata[volume.MetaShelf] == s.name {
			out = append(out, h)
		}
	}
	return out, nil
}

// Volumes lists every volume registered to this shelf.
func (s *Shelf) Volumes() []volume.Volume {
	var out []volume.Volume
	for _, v := range s.lib.GetAll() {
		if v.Metadata[volume.MetaShelf] == s.name {
			out = append(out, v)
		}
	}
	return out
}

// FilterByTopic scopes FilterByTopic to this shelf's volumes.
func (s *Shelf) FilterByTopic(topic string) []volume.Volume {
	var out []volume.Volume
	for _, v := range s.lib.FilterByTopic(topic) {
		if v.Metadata[volume.MetaShelf] == s.name {
			out = append(out, v)
		}
	}
	return out
}

// FindDuplicates scopes duplicate detection to this shelf's volumes.
func (s *Shelf) FindDuplicates(threshold float64) []dedup.Group {
	var out []dedup.Group
	for _, g := range s.lib.FindDuplicates(threshold) {
		if len(g.IDs) == 0 {
			continue
		}
		onShelf := true
		for _, id := range g.IDs {
			v, ok := s.lib.GetByID(id)
			if !ok || v.Metadata[volume.MetaShelf] != s.name {
				onShelf = false
				break
			}
		}
		if onShelf {
			out = append(out, g)
		}
	}
	return out
}

// Summarize acquires a Librarian and summarizes the topic's volumes across
// the whole Library; the result is not limited to this shelf.
func (s *Shelf) Summarize(ctx context.Context, topic string) (librarian.Compendium, error) {
	return s.lib.Summarize(ctx, topic)
}

// Delete removes a single volume by id.
func (s *Shelf) Delete(ctx context.Context, id string) error { return s.lib.Delete(ctx, id) }

// Clear removes every volume on this shelf, leaving other shelves untouched.
func (s *Shelf) Clear(ctx context.Context) error {
	ids := make([]string, 0)
	for _, v := range s.Volumes() {
		ids = append(ids, v.ID)
	}
	return s.lib.DeleteBatch(ctx, ids)
}
