// Package stacks implements the Library core's canonical Volume collection:
// CRUD, index wiring, and StorageBackend-backed persistence.
package stacks

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vellum/internal/dedup"
	"vellum/internal/invertedindex"
	"vellum/internal/learning"
	"vellum/internal/libraryerr"
	"vellum/internal/magnitudecache"
	"vellum/internal/metadataindex"
	"vellum/internal/preservation"
	"vellum/internal/storage"
	"vellum/internal/telemetry"
	"vellum/internal/textcache"
	"vellum/internal/topicindex"
	"vellum/internal/volume"
)

const schemaVersion = 2

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}

// Options configures a Stacks instance.
type Options struct {
	Dimensions             int
	FlushIntervalMs        int
	AutoSave               bool
	CompressTextAboveBytes int
	DedupThreshold         float64
	TextCacheCapacity      int
	Logger                 *telemetry.Logger
	Metrics                *telemetry.Metrics
}

// Stacks owns the canonical Volume collection and its collaborating
// indices, persisted through an injected storage.Backend.
type Stacks struct {
	mu sync.RWMutex

	backend storage.Backend
	opts    Options
	log     *telemetry.Logger
	metrics *telemetry.Metrics

	live map[string]volume.Volume

	inverted  *invertedindex.Index
	topics    *topicindex.Index
	magnitude *magnitudecache.Cache
	textCache *textcache.Cache
	dedupIdx  *dedup.Index

	learningEngine *learning.Engine

	dirty      bool
	flushTimer *time.Timer
	stopFlush  chan struct{}
	corruptSkipped int
}

// New constructs an unopened Stacks. Call Load before use.
func New(backend storage.Backend, opts Options) *Stacks {
	if opts.Logger == nil {
		opts.Logger = telemetry.Noop()
	}
	if opts.TextCacheCapacity <= 0 {
		opts.TextCacheCapacity = 256
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = dedup.DefaultThreshold
	}
	return &Stacks{
		backend:   backend,
		opts:      opts,
		log:       opts.Logger.Child(map[string]any{"component": "stacks"}),
		metrics:   opts.Metrics,
		live:      make(map[string]volume.Volume),
		inverted:  invertedindex.New(),
		topics:    topicindex.New(),
		magnitude: magnitudecache.New(),
		textCache: textcache.New(opts.TextCacheCapacity),
		dedupIdx:  dedup.New(opts.DedupThreshold),
	}
}

// Load reads the backend's KV map, decodes every entry, rebuilds all
// indices, and restores (or freshly initializes) the LearningEngine.
// Corrupt entries are skipped and counted rather than aborting the load.
func (s *Stacks) Load(ctx context.Context) error {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return libraryerr.StacksIO(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = make(map[string]volume.Volume, len(raw))
	s.inverted = invertedindex.New()
	s.topics = topicindex.New()
	s.magnitude = magnitudecache.New()
	s.textCache = textcache.New(s.opts.TextCacheCapacity)
	s.dedupIdx = dedup.New(s.opts.DedupThreshold)
	s.corruptSkipped = 0

	var learningState *learning.State
	for id, data := range raw {
		if id == volume.LearningSentinelKey {
			var st learning.State
			if err := json.Unmarshal(data, &st); err != nil {
				s.log.Warn("learning sentinel unparseable, starting fresh", map[string]any{"error": err.Error()})
			} else {
				learningState = &st
			}
			continue
		}
		v, err := preservation.DecodeRecord(id, data)
		if err != nil {
			s.corruptSkipped++
			s.log.Warn("skipping corrupt stacks entry", map[string]any{"id": id, "error": err.Error()})
			continue
		}
		s.indexLocked(v)
	}
	s.learningEngine = learning.New(learningState)

	s.log.Info("stacks loaded", map[string]any{"count": len(s.live), "corruptSkipped": s.corruptSkipped})
	s.startFlushTimer()
	return nil
}

func (s *Stacks) indexLocked(v volume.Volume) {
	s.live[v.ID] = v
	s.inverted.AddEntry(v.ID, v.Text)
	s.topics.AddEntry(v.ID, v.Topics)
	s.magnitude.Put(v.ID, v.Embedding)
	s.dedupIdx.Add(dedup.Candidate{ID: v.ID, Embedding: v.Embedding, Text: v.Text})
}

func (s *Stacks) unindexLocked(v volume.Volume) {
	delete(s.live, v.ID)
	s.inverted.RemoveEntry(v.ID, v.Text)
	s.topics.RemoveEntry(v.ID, v.Topics)
	s.magnitude.Invalidate(v.ID)
	s.textCache.Invalidate(v.ID)
	s.dedupIdx.Remove(v.ID)
}

func (s *Stacks) startFlushTimer() {
	if s.opts.FlushIntervalMs <= 0 {
		return
	}
	s.stopFlush = make(chan struct{})
	interval := time.Duration(s.opts.FlushIntervalMs) * time.Millisecond
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Flush(context.Background()); err != nil {
					s.log.Error("periodic flush failed", map[string]any{"error": err.Error()})
				}
			case <-s.stopFlush:
				return
			}
		}
	}()
}

// Add assigns a fresh 8-character id, stores the volume, updates every
// index, and returns the id. The embedding dimension must match
// opts.Dimensions when that is non-zero.
func (s *Stacks) Add(ctx context.Context, text string, embedding []float32, metadata map[string]string, topics []string) (string, error) {
	if s.opts.Dimensions > 0 && len(embedding) != s.opts.Dimensions {
		return "", libraryerr.StacksError(fmt.Sprintf("embedding dimension %d != expected %d", len(embedding), s.opts.Dimensions), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for attempts := 0; attempts < 8; attempts++ {
		candidate, err := randomID()
		if err != nil {
			return "", libraryerr.StacksError("id generation failed", err)
		}
		if _, exists := s.live[candidate]; !exists && !volume.IsReservedID(candidate) {
			id = candidate
			break
		}
	}
	if id == "" {
		return "", libraryerr.StacksError("exhausted id generation attempts", nil)
	}

	now := time.Now().UnixMilli()
	if metadata == nil {
		metadata = make(map[string]string)
	}
	v := volume.Volume{
		ID:           id,
		Text:         text,
		Embedding:    embedding,
		Metadata:     metadata,
		Timestamp:    now,
		AccessCount:  0,
		LastAccessed: now,
		Topics:       topics,
	}
	s.indexLocked(v)
	s.markDirtyLocked()

	if s.opts.AutoSave {
		if err := s.flushLocked(ctx); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Update replaces text/metadata/embedding atomically, removing stale
// postings/topics before re-indexing the new content.
func (s *Stacks) Update(ctx context.Context, id string, text string, embedding []float32, metadata map[string]string, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.live[id]
	if !ok {
		return libraryerr.StacksError(fmt.Sprintf("volume %q not found", id), nil)
	}
	s.unindexLocked(existing)

	updated := existing
	updated.Text = text
	updated.Embedding = embedding
	updated.Metadata = metadata
	updated.Topics = topics
	s.indexLocked(updated)
	s.markDirtyLocked()

	if s.opts.AutoSave {
		return s.flushLocked(ctx)
	}
	return nil
}

// BumpAccess increments AccessCount/LastAccessed for id, used by search
// result hydration.
func (s *Stacks) BumpAccess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live[id]
	if !ok {
		return
	}
	v.AccessCount++
	v.LastAccessed = time.Now().UnixMilli()
	s.live[id] = v
	s.dirty = true
}

// Delete removes id from every index and the KV map. Deleted ids are not
// recorded: Add checks a freshly generated id only against live volumes.
func (s *Stacks) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live[id]
	if !ok {
		return libraryerr.StacksError(fmt.Sprintf("volume %q not found", id), nil)
	}
	s.unindexLocked(v)
	s.markDirtyLocked()
	if s.opts.AutoSave {
		return s.flushLocked(ctx)
	}
	return nil
}

// Clear empties every index and the KV map, preserving the schema version.
func (s *Stacks) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = make(map[string]volume.Volume)
	s.inverted = invertedindex.New()
	s.topics = topicindex.New()
	s.magnitude = magnitudecache.New()
	s.textCache = textcache.New(s.opts.TextCacheCapacity)
	s.dedupIdx = dedup.New(s.opts.DedupThreshold)
	s.markDirtyLocked()
	if s.opts.AutoSave {
		return s.flushLocked(ctx)
	}
	return nil
}

// GetByID returns a defensive copy of the volume, or false if absent.
func (s *Stacks) GetByID(id string) (volume.Volume, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.live[id]
	if !ok {
		return volume.Volume{}, false
	}
	return v.Clone(), true
}

// GetAll returns defensive copies of every live volume.
func (s *Stacks) GetAll() []volume.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]volume.Volume, 0, len(s.live))
	for _, v := range s.live {
		out = append(out, v.Clone())
	}
	return out
}

// Size returns the count of live (non-sentinel) entries.
func (s *Stacks) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// CorruptSkipped reports how many entries were dropped on the last Load.
func (s *Stacks) CorruptSkipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corruptSkipped
}

// Inverted, Topics, Magnitude, TextCache, Dedup, and Learning expose the
// collaborating indices to StacksSearch and the Library facade.
func (s *Stacks) Inverted() *invertedindex.Index   { return s.inverted }
func (s *Stacks) Topics() *topicindex.Index        { return s.topics }
func (s *Stacks) Magnitude() *magnitudecache.Cache { return s.magnitude }
func (s *Stacks) TextCache() *textcache.Cache      { return s.textCache }
func (s *Stacks) Dedup() *dedup.Index              { return s.dedupIdx }
func (s *Stacks) Learning() *learning.Engine       { return s.learningEngine }

func (s *Stacks) markDirtyLocked() { s.dirty = true }

// Flush persists the current state if dirty. Safe to call concurrently;
// internally serialized by the Stacks write lock.
func (s *Stacks) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Stacks) flushLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	records := make(map[string][]byte, len(s.live)+1)
	for id, v := range s.live {
		data, err := preservation.EncodeRecord(v, s.opts.CompressTextAboveBytes)
		if err != nil {
			return libraryerr.StacksError(fmt.Sprintf("encode volume %q", id), err)
		}
		records[id] = data
	}
	if s.learningEngine != nil {
		data, err := json.Marshal(s.learningEngine.State())
		if err != nil {
			return libraryerr.StacksError("encode learning sentinel", err)
		}
		records[volume.LearningSentinelKey] = data
	}
	if err := s.backend.Save(ctx, records); err != nil {
		return libraryerr.StacksIO(err)
	}
	s.dirty = false
	if s.metrics != nil {
		s.metrics.IncCounter("stacks_flush_total", nil)
	}
	return nil
}

// Dispose stops the background flush timer and flushes synchronously.
func (s *Stacks) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.stopFlush != nil {
		close(s.stopFlush)
		s.stopFlush = nil
	}
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		return err
	}
	return s.backend.Close()
}

// MetadataFilterMatch is a thin re-export so callers of StacksSearch don't
// need to import metadataindex directly for the common case.
var MetadataFilterMatch = metadataindex.MatchesAll
