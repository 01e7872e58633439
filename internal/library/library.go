// Package library implements the Library facade: the orchestration layer
// composing Stacks, StacksSearch, Recommendation, Deduplication, and the
// Librarian registry behind a single interface.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"vellum/internal/config"
	"vellum/internal/dedup"
	"vellum/internal/embedprovider"
	"vellum/internal/invertedindex"
	"vellum/internal/librarian"
	"vellum/internal/libraryerr"
	"vellum/internal/recommend"
	"vellum/internal/stacks"
	"vellum/internal/stacks/search"
	"vellum/internal/storage"
	"vellum/internal/telemetry"
	"vellum/internal/topicindex"
	"vellum/internal/volume"
)

// Drainable is the subset of CirculationDesk behavior Library needs at
// dispose time, kept as an interface here to avoid an import cycle (the
// circulation package depends on library, not the reverse).
type Drainable interface {
	Drain(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// PatronProfile is a read-only summary of the LearningEngine's current
// state, exposed for UI/diagnostics.
type PatronProfile struct {
	AdaptedWeights recommend.Weights
	TotalQueries   int64
	TopicCount     int
}

// Library is the orchestration facade.
type Library struct {
	mu sync.RWMutex

	stacks   *stacks.Stacks
	search   *search.Search
	embedder embedprovider.Provider
	registry *librarian.Registry
	desk     Drainable

	log     *telemetry.Logger
	metrics *telemetry.Metrics

	halfLifeMs  int64
	initialized bool
}

// Option configures a Library during construction.
type Option func(*Library)

func WithLogger(l *telemetry.Logger) Option   { return func(lib *Library) { lib.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(lib *Library) { lib.metrics = m } }
func WithLibrarianRegistry(r *librarian.Registry) Option {
	return func(lib *Library) { lib.registry = r }
}
func WithCirculationDesk(d Drainable) Option { return func(lib *Library) { lib.desk = d } }
func WithRecencyHalfLifeMs(ms int64) Option  { return func(lib *Library) { lib.halfLifeMs = ms } }

// New constructs an unopened Library. Call Initialize before use.
func New(backend storage.Backend, embedder embedprovider.Provider, cfg config.Config, opts ...Option) *Library {
	lib := &Library{
		embedder:   embedder,
		log:        telemetry.Noop(),
		registry:   librarian.NewRegistry(),
		halfLifeMs: recommend.DefaultHalfLifeMs,
	}
	for _, o := range opts {
		o(lib)
	}
	lib.stacks = stacks.New(backend, stacks.Options{
		Dimensions:             cfg.Dimensions,
		FlushIntervalMs:        cfg.FlushIntervalMs,
		AutoSave:               cfg.AutoSave,
		CompressTextAboveBytes: cfg.CompressTextAboveBytes,
		DedupThreshold:         cfg.DedupThreshold,
		TextCacheCapacity:      cfg.TextCacheCapacity,
		Logger:                 lib.log,
		Metrics:                lib.metrics,
	})
	lib.search = search.New(lib.stacks)
	if cfg.RecencyHalfLifeMs > 0 {
		lib.halfLifeMs = cfg.RecencyHalfLifeMs
	}
	return lib
}

// Initialize runs StorageBackend -> Stacks.load -> index rebuild ->
// LearningState restore -> background flush timer start, all performed
// inside Stacks.Load.
func (lib *Library) Initialize(ctx context.Context) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.initialized {
		return nil
	}
	if err := lib.stacks.Load(ctx); err != nil {
		return err
	}
	lib.initialized = true
	lib.log.Info("library initialized", map[string]any{"size": lib.stacks.Size()})
	return nil
}

// Dispose reverses Initialize: drains any attached CirculationDesk, then
// flushes and closes Stacks.
func (lib *Library) Dispose(ctx context.Context) error {
	lib.mu.Lock()
	desk := lib.desk
	lib.initialized = false
	lib.mu.Unlock()

	if desk != nil {
		if err := desk.Drain(ctx); err != nil {
			lib.log.Warn("circulation desk drain failed during dispose", map[string]any{"error": err.Error()})
		}
		if err := desk.Dispose(ctx); err != nil {
			lib.log.Warn("circulation desk dispose failed", map[string]any{"error": err.Error()})
		}
	}
	return lib.stacks.Dispose(ctx)
}

// AttachCirculationDesk wires a CirculationDesk onto an already-constructed
// Library, for callers that must build the Desk after the Library (the Desk
// itself holds a reference back to the Library).
func (lib *Library) AttachCirculationDesk(d Drainable) {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	lib.desk = d
}

func (lib *Library) IsInitialized() bool {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.initialized
}

func (lib *Library) Size() int { return lib.stacks.Size() }

// Stacks exposes the underlying store for collaborators (CirculationDesk,
// Shelf) that need direct access.
func (lib *Library) Stacks() *stacks.Stacks { return lib.stacks }

// SearchEngine exposes the underlying StacksSearch for collaborators.
func (lib *Library) SearchEngine() *search.Search { return lib.search }

// Add embeds text, checks for a duplicate, and persists a new Volume. If a
// duplicate is found (by cosine threshold or text fingerprint), the
// existing id is returned and no new Volume is created.
func (lib *Library) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	embeddings, err := lib.embedder.Embed(ctx, []string{text})
	if err != nil {
		return "", libraryerr.EmbeddingError(err)
	}
	if len(embeddings) == 0 {
		return "", libraryerr.EmbeddingError(fmt.Errorf("embedding provider returned no vectors"))
	}
	embedding := embeddings[0]

	if dup := lib.stacks.Dedup().CheckDuplicate(text, embedding); dup.IsDuplicate {
		return dup.ExistingID, nil
	}

	topics := topicsFromMetadata(metadata, text)
	id, err := lib.stacks.Add(ctx, text, embedding, metadata, topics)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddBatch adds each text independently, returning ids in the same order;
// a text skipped as a duplicate gets the existing volume's id in its slot.
// On the first error it stops and returns the ids filled in so far.
func (lib *Library) AddBatch(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error) {
	ids := make([]string, len(texts))
	for i, text := range texts {
		var md map[string]string
		if i < len(metadatas) {
			md = metadatas[i]
		}
		id, err := lib.Add(ctx, text, md)
		if err != nil {
			return ids, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Search embeds queryText and runs exact cosine vector search.
func (lib *Library) Search(ctx context.Context, queryText string, opts search.Options) ([]search.Hit, error) {
	embeddings, err := lib.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}
	hits := lib.search.Vector(embeddings[0], opts)
	lib.notifyLearning(embeddings[0], hits, "")
	return hits, nil
}

// TextSearch runs BM25 search without touching the embedding provider.
func (lib *Library) TextSearch(ctx context.Context, queryText string, opts search.Options) []search.Hit {
	return lib.search.Text(queryText, invertedindex.DefaultParams, opts)
}

// AdvancedSearch parses the Query DSL, embeds the free-text portion, and
// runs the hybrid blend.
func (lib *Library) AdvancedSearch(ctx context.Context, dsl string, opts search.Options) ([]search.Hit, error) {
	parsed := search.ParseQuery(dsl)
	opts.MetadataFilters = append(opts.MetadataFilters, parsed.MetadataFilters...)
	opts.TopicFilters = append(opts.TopicFilters, parsed.TopicFilters...)
	if parsed.DateRange != nil {
		opts.DateAfter = parsed.DateRange.After
		opts.DateBefore = parsed.DateRange.Before
	}

	embeddings, err := lib.embedder.Embed(ctx, []string{parsed.Text})
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}
	hits := lib.search.Hybrid(embeddings[0], parsed.Text, opts)
	if parsed.MinScore > 0 {
		hits = filterByMinScore(hits, parsed.MinScore)
	}
	lib.notifyLearning(embeddings[0], hits, "")
	return hits, nil
}

func filterByMinScore(hits []search.Hit, min float64) []search.Hit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score >= min {
			out = append(out, h)
		}
	}
	return out
}

// RecommendOptions configures Recommend.
type RecommendOptions struct {
	Topic      string
	MaxResults int
}

// Recommend blends vector similarity, recency, and frequency, using the
// LearningEngine's current (possibly per-topic) weight profile.
func (lib *Library) Recommend(ctx context.Context, queryText string, opts RecommendOptions) ([]search.Hit, error) {
	embeddings, err := lib.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}
	query := embeddings[0]

	candidates := lib.search.Vector(query, search.Options{MaxResults: 0, TopicFilters: topicFilterSlice(opts.Topic)})
	weights := lib.stacks.Learning().CurrentWeights(opts.Topic)

	now := time.Now().UnixMilli()
	var maxAccess int64
	for _, c := range candidates {
		if c.Volume.AccessCount > maxAccess {
			maxAccess = c.Volume.AccessCount
		}
	}

	scored := make([]search.Hit, 0, len(candidates))
	for _, c := range candidates {
		age := now - c.Volume.LastAccessed
		score := recommend.Score(recommend.Candidate{
			VectorScore: c.Score,
			AgeMs:       age,
			AccessCount: c.Volume.AccessCount,
		}, maxAccess, lib.halfLifeMs, weights)
		scored = append(scored, search.Hit{Volume: c.Volume, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if opts.MaxResults > 0 && len(scored) > opts.MaxResults {
		scored = scored[:opts.MaxResults]
	}

	lib.notifyLearning(query, scored, opts.Topic)
	return scored, nil
}

func topicFilterSlice(topic string) []string {
	if topic == "" {
		return nil
	}
	return []string{topic}
}

func (lib *Library) notifyLearning(queryEmbedding []float32, hits []search.Hit, topic string) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Volume.ID)
	}
	lib.stacks.Learning().RecordImplicit(queryEmbedding, ids, topic)
}

// RecordFeedback forwards explicit positive/negative feedback to the
// LearningEngine.
func (lib *Library) RecordFeedback(id string, positive bool) {
	lib.stacks.Learning().RecordFeedback(id, positive)
}

func (lib *Library) GetByID(id string) (volume.Volume, bool) { return lib.stacks.GetByID(id) }
func (lib *Library) GetAll() []volume.Volume                 { return lib.stacks.GetAll() }

// GetTopics returns every known topic path, sorted.
func (lib *Library) GetTopics() []string { return lib.stacks.Topics().GetAllTopics() }

// FilterByTopic returns every volume registered (directly or via an
// ancestor) under the given topic path.
func (lib *Library) FilterByTopic(topic string) []volume.Volume {
	ids := lib.stacks.Topics().GetEntries(topic)
	out := make([]volume.Volume, 0, len(ids))
	for _, id := range ids {
		if v, ok := lib.stacks.GetByID(id); ok {
			out = append(out, v)
		}
	}
	return out
}

// FindDuplicates returns groups of mutually-duplicate live volumes.
func (lib *Library) FindDuplicates(threshold float64) []dedup.Group {
	return lib.stacks.Dedup().FindDuplicateGroups(threshold)
}

// CheckDuplicate reports whether text/embedding duplicates a live volume.
func (lib *Library) CheckDuplicate(text string, embedding []float32) dedup.Result {
	return lib.stacks.Dedup().CheckDuplicate(text, embedding)
}

// Summarize acquires the winning Librarian for topic and asks it to
// summarize the topic's volumes.
func (lib *Library) Summarize(ctx context.Context, topic string) (librarian.Compendium, error) {
	conn, ok := lib.registry.Acquire(topic)
	if !ok {
		return librarian.Compendium{}, libraryerr.LibraryError("no librarian registered", nil)
	}
	defer conn.Release()
	volumes := lib.FilterByTopic(topic)
	return conn.Librarian.Summarize(ctx, volumes, topic)
}

// CompendiumOptions configures Compendium.
type CompendiumOptions struct {
	MinEntries      int
	MinAgeMs        int64
	DeleteOriginals bool
}

// Compendium fetches topic volumes and, when they satisfy MinEntries/MinAgeMs,
// summarizes them into a single entryType=compendium Volume, optionally
// deleting the sources.
func (lib *Library) Compendium(ctx context.Context, topic string, opts CompendiumOptions) (string, error) {
	volumes := lib.FilterByTopic(topic)
	if len(volumes) < opts.MinEntries {
		return "", nil
	}
	oldest := volumes[0].Timestamp
	for _, v := range volumes {
		if v.Timestamp < oldest {
			oldest = v.Timestamp
		}
	}
	age := time.Now().UnixMilli() - oldest
	if age < opts.MinAgeMs {
		return "", nil
	}

	compendium, err := lib.Summarize(ctx, topic)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{
		volume.MetaTopic:     topic,
		volume.MetaEntryType: volume.EntryCompendium,
	}
	id, err := lib.Add(ctx, compendium.Text, metadata)
	if err != nil {
		return "", err
	}

	if opts.DeleteOriginals {
		ids := make([]string, 0, len(volumes))
		for _, v := range volumes {
			ids = append(ids, v.ID)
		}
		_ = lib.DeleteBatch(ctx, ids)
	}
	return id, nil
}

// Delete removes a single volume.
func (lib *Library) Delete(ctx context.Context, id string) error { return lib.stacks.Delete(ctx, id) }

// DeleteBatch deletes every id, returning the first error encountered (if
// any) after attempting all deletions.
func (lib *Library) DeleteBatch(ctx context.Context, ids []string) error {
	var firstErr error
	for _, id := range ids {
		if err := lib.stacks.Delete(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear empties the Stacks entirely.
func (lib *Library) Clear(ctx context.Context) error { return lib.stacks.Clear(ctx) }

// PatronProfile summarizes the LearningEngine's current state.
func (lib *Library) PatronProfile() PatronProfile {
	st := lib.stacks.Learning().State()
	return PatronProfile{
		AdaptedWeights: st.AdaptedWeights,
		TotalQueries:   st.TotalQueries,
		TopicCount:     len(st.TopicProfiles),
	}
}

// Librarians exposes the registry so callers can register collaborators.
func (lib *Library) Librarians() *librarian.Registry { return lib.registry }

// Shelves returns the distinct shelf names observed across live volumes.
func (lib *Library) Shelves() []string {
	seen := make(map[string]bool)
	for _, v := range lib.stacks.GetAll() {
		if name, ok := v.Metadata[volume.MetaShelf]; ok && name != "" {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// topicsFromMetadata derives a Volume's topic set per the Stacks/TopicIndex
// convention: metadata.topics (JSON array) takes precedence, then a single
// metadata.topic, then auto-extraction from text's highest-frequency
// non-stopword tokens.
func topicsFromMetadata(metadata map[string]string, text string) []string {
	if metadata != nil {
		if raw, ok := metadata[volume.MetaTopics]; ok && raw != "" {
			var topics []string
			if err := json.Unmarshal([]byte(raw), &topics); err == nil && len(topics) > 0 {
				return topics
			}
		}
		if t, ok := metadata[volume.MetaTopic]; ok && t != "" {
			return []string{t}
		}
	}
	return autoExtractTopics(text)
}

// autoExtractTopics picks the highest-frequency non-stopword token as a
// single-level fallback topic, or nil when nothing qualifies.
func autoExtractTopics(text string) []string {
	counts := make(map[string]int)
	for _, tok := range invertedindex.Tokenize(text) {
		if _, stop := topicindex.StopwordsForAutoExtraction[tok]; stop {
			continue
		}
		counts[tok]++
	}
	best, bestCount := "", 0
	for tok, c := range counts {
		if c > bestCount || (c == bestCount && tok < best) {
			best, bestCount = tok, c
		}
	}
	if best == "" {
		return nil
	}
	return []string{best}
}
