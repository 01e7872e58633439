// Package circulation implements CirculationDesk: the bounded,
// single-consumer background job queue that performs extraction,
// compendium writing, topic reorganization, and optimization without
// blocking the caller.
package circulation

import (
	"context"
	"sync"
	"time"

	"vellum/internal/config"
	"vellum/internal/librarian"
	"vellum/internal/library"
	"vellum/internal/telemetry"
	"vellum/internal/volume"
)

// Kind identifies a job's behavior.
type Kind string

const (
	KindExtraction     Kind = "extraction"
	KindCompendium     Kind = "compendium"
	KindReorganization Kind = "reorganization"
	KindOptimization   Kind = "optimization"
)

// ExtractionPayload drives an Extraction job.
type ExtractionPayload struct {
	UserInput string
	Response  string
	Topic     string // optional; used for topic-threshold auto-escalation
}

// CompendiumPayload drives a Compendium job.
type CompendiumPayload struct {
	Topic string
}

// ReorganizationPayload drives a Reorganization job.
type ReorganizationPayload struct {
	Topic string
}

// OptimizationPayload drives an Optimization job.
type OptimizationPayload struct {
	Topic string
}

type job struct {
	kind           Kind
	extraction     ExtractionPayload
	compendium     CompendiumPayload
	reorganization ReorganizationPayload
	optimization   OptimizationPayload
}

// Desk is a bounded, single-consumer job queue sitting in front of a
// Library and a Librarian registry.
type Desk struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []job
	processing bool
	stopped    bool
	done       chan struct{}
	started    bool

	lib      *library.Library
	registry *librarian.Registry
	cfg      config.CirculationConfig
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
}

// Option configures a Desk during construction.
type Option func(*Desk)

func WithLogger(l *telemetry.Logger) Option   { return func(d *Desk) { d.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(d *Desk) { d.metrics = m } }

// New constructs a Desk. Call Start to begin consuming jobs.
func New(lib *library.Library, registry *librarian.Registry, cfg config.CirculationConfig, opts ...Option) *Desk {
	d := &Desk{
		lib:      lib,
		registry: registry,
		cfg:      cfg,
		log:      telemetry.Noop(),
		done:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the single consumer goroutine. Calling Start more than
// once is a no-op.
func (d *Desk) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.run(ctx)
}

func (d *Desk) run(ctx context.Context) {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if d.stopped && len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue = d.queue[1:]
		d.processing = true
		d.mu.Unlock()

		if err := d.process(ctx, j); err != nil {
			d.log.Warn("circulation job failed", map[string]any{"kind": string(j.kind), "error": err.Error()})
		}

		d.mu.Lock()
		d.processing = false
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *Desk) enqueue(j job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.queue = append(d.queue, j)
	if d.metrics != nil {
		d.metrics.IncCounter("circulation_enqueued_total", map[string]string{"kind": string(j.kind)})
	}
	d.cond.Signal()
}

// EnqueueExtraction is non-blocking; it returns immediately.
func (d *Desk) EnqueueExtraction(p ExtractionPayload) { d.enqueue(job{kind: KindExtraction, extraction: p}) }

// EnqueueCompendium is non-blocking; it returns immediately.
func (d *Desk) EnqueueCompendium(p CompendiumPayload) { d.enqueue(job{kind: KindCompendium, compendium: p}) }

// EnqueueReorganization is non-blocking; it returns immediately.
func (d *Desk) EnqueueReorganization(p ReorganizationPayload) {
	d.enqueue(job{kind: KindReorganization, reorganization: p})
}

// EnqueueOptimization is non-blocking; it returns immediately.
func (d *Desk) EnqueueOptimization(p OptimizationPayload) {
	d.enqueue(job{kind: KindOptimization, optimization: p})
}

// Pending reports the number of jobs not yet started.
func (d *Desk) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Processing reports whether the consumer is currently handling a job.
func (d *Desk) Processing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processing
}

// Drain blocks until the queue is empty and no job is processing, or ctx is
// cancelled.
func (d *Desk) Drain(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		d.mu.Lock()
		idle := len(d.queue) == 0 && !d.processing
		d.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush cancels every pending (not yet started) job without running it.
func (d *Desk) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
}

// Dispose prevents further enqueues, drops pending jobs without executing
// them, and waits for any in-flight job to finish before returning.
func (d *Desk) Dispose(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.queue = nil
	started := d.started
	d.cond.Broadcast()
	d.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Desk) process(ctx context.Context, j job) error {
	switch j.kind {
	case KindExtraction:
		return d.processExtraction(ctx, j.extraction)
	case KindCompendium:
		_, err := d.lib.Compendium(ctx, j.compendium.Topic, library.CompendiumOptions{
			MinEntries:      d.cfg.MinCompendiumEntries,
			MinAgeMs:        d.cfg.MinCompendiumAgeMs,
			DeleteOriginals: d.cfg.DeleteOriginals,
		})
		return err
	case KindReorganization:
		return d.processReorganization(ctx, j.reorganization)
	case KindOptimization:
		return d.processOptimization(ctx, j.optimization)
	default:
		return nil
	}
}

func (d *Desk) processExtraction(ctx context.Context, p ExtractionPayload) error {
	conn, ok := d.registry.Acquire(p.Topic)
	if !ok {
		return nil
	}
	defer conn.Release()

	memories, err := conn.Librarian.Extract(ctx, p.UserInput, p.Response)
	if err != nil {
		return err
	}
	for _, m := range memories {
		if _, err := d.lib.Add(ctx, m.Text, m.Metadata); err != nil {
			d.log.Warn("extraction add failed", map[string]any{"error": err.Error()})
		}
	}

	d.maybeEscalate(p.Topic)
	return nil
}

// maybeEscalate enqueues an Optimization job for topic when either the
// global or the topic volume count has crossed its configured threshold.
func (d *Desk) maybeEscalate(topic string) {
	if d.cfg.GlobalThreshold > 0 && d.lib.Size() >= d.cfg.GlobalThreshold {
		d.EnqueueOptimization(OptimizationPayload{Topic: topic})
		return
	}
	if topic == "" || d.cfg.TopicThreshold <= 0 {
		return
	}
	if len(d.lib.FilterByTopic(topic)) >= d.cfg.TopicThreshold {
		d.EnqueueOptimization(OptimizationPayload{Topic: topic})
	}
}

func (d *Desk) processReorganization(ctx context.Context, p ReorganizationPayload) error {
	conn, ok := d.registry.Acquire(p.Topic)
	if !ok {
		return nil
	}
	defer conn.Release()

	volumes := d.lib.FilterByTopic(p.Topic)
	plan, err := conn.Librarian.Reorganize(ctx, p.Topic, volumes)
	if err != nil {
		return err
	}
	d.applyReorganizationPlan(ctx, plan)
	return nil
}

func (d *Desk) applyReorganizationPlan(ctx context.Context, plan librarian.ReorganizationPlan) {
	for from, to := range plan.Merges {
		d.lib.Stacks().Topics().MergeTopic(from, to)
	}
	for id, newTopic := range plan.MoveVolume {
		v, ok := d.lib.GetByID(id)
		if !ok {
			continue
		}
		metadata := make(map[string]string, len(v.Metadata)+1)
		for k, val := range v.Metadata {
			metadata[k] = val
		}
		metadata[volume.MetaTopic] = newTopic
		if err := d.lib.Stacks().Update(ctx, id, v.Text, v.Embedding, metadata, []string{newTopic}); err != nil {
			d.log.Warn("reorganization move failed", map[string]any{"id": id, "error": err.Error()})
		}
	}
	// plan.NewTopics is informational: topicindex nodes are created lazily
	// as volumes move into them, so an empty new topic has nothing to persist
	// until its first entry arrives.
}

func (d *Desk) processOptimization(ctx context.Context, p OptimizationPayload) error {
	conn, ok := d.registry.Acquire(p.Topic)
	if !ok {
		return nil
	}
	defer conn.Release()

	volumes := d.lib.FilterByTopic(p.Topic)
	result, err := conn.Librarian.Optimize(ctx, p.Topic, volumes)
	if err != nil {
		return err
	}
	if result.Summary != "" {
		metadata := map[string]string{
			volume.MetaTopic:     p.Topic,
			volume.MetaEntryType: volume.EntryCompendium,
		}
		if _, err := d.lib.Add(ctx, result.Summary, metadata); err != nil {
			d.log.Warn("optimization summary add failed", map[string]any{"error": err.Error()})
		}
	}
	if len(result.PruneIDs) > 0 {
		if err := d.lib.DeleteBatch(ctx, result.PruneIDs); err != nil {
			d.log.Warn("optimization prune failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}
