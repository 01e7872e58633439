// Package librarian implements the Library core's LLM-driven collaborator
// interface and arbitration registry.
package librarian

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"vellum/internal/libraryerr"
	"vellum/internal/textgen"
	"vellum/internal/volume"
)

// Memory is a single distilled fact/preference extracted from a turn.
type Memory struct {
	Text     string
	Metadata map[string]string
}

// Compendium is a summary produced over a set of volumes for a topic.
type Compendium struct {
	Text  string
	Topic string
}

// TopicClassification is the result of classifyTopic.
type TopicClassification struct {
	Topic      string
	Confidence float64
}

// ReorganizationPlan describes topic moves/merges/new-subtopics to apply.
type ReorganizationPlan struct {
	Merges     map[string]string // from -> to
	NewTopics  []string
	MoveVolume map[string]string // volumeID -> new topic
}

// OptimizationResult names ids to prune and an optional replacement summary.
type OptimizationResult struct {
	PruneIDs []string
	Summary  string
}

// Librarian is a polymorphic collaborator for distillation and maintenance.
type Librarian interface {
	Name() string
	Bid(topic string) float64
	Extract(ctx context.Context, userInput, response string) ([]Memory, error)
	Summarize(ctx context.Context, volumes []volume.Volume, topic string) (Compendium, error)
	ClassifyTopic(ctx context.Context, text string) (TopicClassification, error)
	Reorganize(ctx context.Context, topic string, volumes []volume.Volume) (ReorganizationPlan, error)
	Optimize(ctx context.Context, topic string, volumes []volume.Volume) (OptimizationResult, error)
}

// defaultLibrarian wires a TextGenerationProvider behind the Librarian
// interface using simple prompt templates.
type defaultLibrarian struct {
	name string
	gen  textgen.Provider
}

// CreateDefaultLibrarian builds the reference Librarian implementation.
func CreateDefaultLibrarian(name string, gen textgen.Provider) Librarian {
	return &defaultLibrarian{name: name, gen: gen}
}

func (d *defaultLibrarian) Name() string { return d.name }

// Bid advertises a flat interest in every topic; specialized Librarians
// should override with a topic-aware heuristic.
func (d *defaultLibrarian) Bid(topic string) float64 { return 0.5 }

func (d *defaultLibrarian) Extract(ctx context.Context, userInput, response string) ([]Memory, error) {
	prompt := fmt.Sprintf(
		"Extract durable facts or preferences worth remembering from this exchange.\nReturn a JSON array of objects with a \"text\" field.\n\nUser: %s\nAssistant: %s",
		userInput, response)
	out, err := d.gen.Generate(ctx, prompt, textgen.Options{MaxTokens: 512})
	if err != nil {
		return nil, libraryerr.LibraryError("extract failed", err)
	}
	return parseMemories(out), nil
}

func parseMemories(raw string) []Memory {
	var items []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &items); err != nil {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil
		}
		return []Memory{{Text: trimmed}}
	}
	out := make([]Memory, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		out = append(out, Memory{Text: it.Text})
	}
	return out
}

func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func (d *defaultLibrarian) Summarize(ctx context.Context, volumes []volume.Volume, topic string) (Compendium, error) {
	var sb strings.Builder
	for _, v := range volumes {
		sb.WriteString("- ")
		sb.WriteString(v.Text)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf("Summarize the following notes about %q into a concise compendium entry:\n%s", topic, sb.String())
	text, err := d.gen.Generate(ctx, prompt, textgen.Options{MaxTokens: 512})
	if err != nil {
		return Compendium{}, libraryerr.LibraryError("summarize failed", err)
	}
	return Compendium{Text: text, Topic: topic}, nil
}

func (d *defaultLibrarian) ClassifyTopic(ctx context.Context, text string) (TopicClassification, error) {
	prompt := fmt.Sprintf("Classify this text into a single slash-separated topic path. Reply with only the path.\n\n%s", text)
	out, err := d.gen.Generate(ctx, prompt, textgen.Options{MaxTokens: 32})
	if err != nil {
		return TopicClassification{}, libraryerr.LibraryError("classifyTopic failed", err)
	}
	topic := strings.TrimSpace(out)
	if topic == "" {
		return TopicClassification{Topic: "uncategorized", Confidence: 0}, nil
	}
	return TopicClassification{Topic: topic, Confidence: 0.8}, nil
}

func (d *defaultLibrarian) Reorganize(ctx context.Context, topic string, volumes []volume.Volume) (ReorganizationPlan, error) {
	var sb strings.Builder
	for _, v := range volumes {
		sb.WriteString("- ")
		sb.WriteString(v.Text)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf(
		"Propose a reorganization for the topic %q given these notes. Reply with a JSON object with keys "+
			"\"merges\" (object mapping a topic path to merge into another), \"newTopics\" (array of new subtopic "+
			"paths), and \"moveVolume\" (object mapping nothing by default, leave empty unless certain).\n%s",
		topic, sb.String())
	out, err := d.gen.Generate(ctx, prompt, textgen.Options{MaxTokens: 512})
	if err != nil {
		return ReorganizationPlan{}, libraryerr.LibraryError("reorganize failed", err)
	}
	return parseReorganizationPlan(out), nil
}

func parseReorganizationPlan(raw string) ReorganizationPlan {
	var parsed struct {
		Merges     map[string]string `json:"merges"`
		NewTopics  []string          `json:"newTopics"`
		MoveVolume map[string]string `json:"moveVolume"`
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return ReorganizationPlan{}
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return ReorganizationPlan{}
	}
	return ReorganizationPlan{Merges: parsed.Merges, NewTopics: parsed.NewTopics, MoveVolume: parsed.MoveVolume}
}

func (d *defaultLibrarian) Optimize(ctx context.Context, topic string, volumes []volume.Volume) (OptimizationResult, error) {
	compendium, err := d.Summarize(ctx, volumes, topic)
	if err != nil {
		return OptimizationResult{}, err
	}
	ids := make([]string, 0, len(volumes))
	for _, v := range volumes {
		ids = append(ids, v.ID)
	}
	return OptimizationResult{PruneIDs: ids, Summary: compendium.Text}, nil
}

// DisposableConnection lets a registry caller release a Librarian reference.
type DisposableConnection struct {
	Librarian Librarian
	release   func()
}

// Release invokes the registry's release hook, if any.
func (d DisposableConnection) Release() {
	if d.release != nil {
		d.release()
	}
}

type registration struct {
	librarian Librarian
	order     int
}

// Registry arbitrates among multiple registered Librarians by per-topic bid.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	refs    map[string]int
}

func NewRegistry() *Registry {
	return &Registry{refs: make(map[string]int)}
}

// Register adds a Librarian to the arbitration pool.
func (r *Registry) Register(l Librarian) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registration{librarian: l, order: len(r.entries)})
}

// Acquire returns the highest-bidding Librarian for topic, ties broken by
// registration order, wrapped in a DisposableConnection.
func (r *Registry) Acquire(topic string) (DisposableConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return DisposableConnection{}, false
	}
	best := r.entries[0]
	bestBid := best.librarian.Bid(topic)
	for _, e := range r.entries[1:] {
		bid := e.librarian.Bid(topic)
		if bid > bestBid {
			best, bestBid = e, bid
		}
	}
	name := best.librarian.Name()
	r.refs[name]++

	return DisposableConnection{
		Librarian: best.librarian,
		release: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.refs[name] > 0 {
				r.refs[name]--
			}
		},
	}, true
}

// Size reports the number of registered Librarians.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
