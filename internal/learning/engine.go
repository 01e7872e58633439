// Package learning implements the LearningEngine: adaptive weight profile,
// query history, explicit/implicit feedback, and per-topic profiles.
package learning

import (
	"sync"
	"time"

	"vellum/internal/recommend"
)

const (
	DefaultQueryHistorySize = 256
	DefaultAdaptEveryN      = 32
	adaptDelta              = 0.05
)

// VolumeFeedback tracks implicit signal for a single volume.
type VolumeFeedback struct {
	QueryCount        int64
	TotalRetrievals   int64
	LastQueryTimestamp int64
}

// ExplicitFeedback tracks explicit polarity votes for a single volume.
type ExplicitFeedback struct {
	PositiveCount int64
	NegativeCount int64
}

// QueryRecord is one entry in the bounded query history ring.
type QueryRecord struct {
	Embedding   []float32
	Timestamp   int64
	ResultCount int
}

// TopicProfile is a per-topic learned weight profile with an optional
// interest embedding.
type TopicProfile struct {
	Weights          recommend.Weights
	InterestEmbedding []float32
	QueryCount       int64
}

// State is the full persisted learning state, serialized to the
// __learning sentinel alongside Stacks entries.
type State struct {
	AdaptedWeights   recommend.Weights                 `json:"adaptedWeights"`
	Feedback         map[string]*VolumeFeedback         `json:"feedback"`
	QueryHistory     []QueryRecord                      `json:"queryHistory"`
	ExplicitFeedback map[string]*ExplicitFeedback       `json:"explicitFeedback"`
	TopicProfiles    map[string]*TopicProfile           `json:"topicProfiles"`
	TotalQueries     int64                              `json:"totalQueries"`
	LastUpdated      int64                              `json:"lastUpdated"`
}

// NewState returns a fresh, valid LearningState.
func NewState() *State {
	return &State{
		AdaptedWeights:   recommend.DefaultWeights,
		Feedback:         make(map[string]*VolumeFeedback),
		QueryHistory:     nil,
		ExplicitFeedback: make(map[string]*ExplicitFeedback),
		TopicProfiles:    make(map[string]*TopicProfile),
	}
}

// Engine owns a LearningState and the coordinate-search weight adaptation
// loop. It is safe for concurrent use.
type Engine struct {
	mu               sync.Mutex
	state            *State
	historyCapacity  int
	adaptEveryN      int
	now              func() int64
	recentScores     []float64 // last recentScoreCap observed recommendation scores
	recentScoreCap   int
}

type Option func(*Engine)

func WithHistoryCapacity(n int) Option { return func(e *Engine) { e.historyCapacity = n } }
func WithAdaptEveryN(n int) Option     { return func(e *Engine) { e.adaptEveryN = n } }
func WithClock(now func() int64) Option { return func(e *Engine) { e.now = now } }

// New builds an Engine. state may be nil to start fresh (e.g. when Stacks
// load found no valid sentinel).
func New(state *State, opts ...Option) *Engine {
	if state == nil {
		state = NewState()
	}
	e := &Engine{
		state:           state,
		historyCapacity: DefaultQueryHistorySize,
		adaptEveryN:     DefaultAdaptEveryN,
		now:             func() int64 { return time.Now().UnixMilli() },
		recentScoreCap:  64,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the engine's live state (not a copy) for persistence.
// Callers must not mutate the returned slices/maps concurrently with engine
// use.
func (e *Engine) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentWeights returns the global adapted weights, or a topic's learned
// profile when topic is non-empty and known.
func (e *Engine) CurrentWeights(topic string) recommend.Weights {
	e.mu.Lock()
	defer e.mu.Unlock()
	if topic != "" {
		if p, ok := e.state.TopicProfiles[topic]; ok {
			return p.Weights
		}
	}
	return e.state.AdaptedWeights
}

// RecordImplicit updates per-volume feedback and the bounded query history
// ring for each result returned by a retrieval, and maintains a
// recency-weighted running-mean interest embedding per topic when topic is
// non-empty.
func (e *Engine) RecordImplicit(queryEmbedding []float32, resultIDs []string, topic string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, id := range resultIDs {
		fb, ok := e.state.Feedback[id]
		if !ok {
			fb = &VolumeFeedback{}
			e.state.Feedback[id] = fb
		}
		fb.TotalRetrievals++
		fb.QueryCount++
		fb.LastQueryTimestamp = now
	}

	rec := QueryRecord{Embedding: queryEmbedding, Timestamp: now, ResultCount: len(resultIDs)}
	e.state.QueryHistory = append(e.state.QueryHistory, rec)
	if len(e.state.QueryHistory) > e.historyCapacity {
		e.state.QueryHistory = e.state.QueryHistory[len(e.state.QueryHistory)-e.historyCapacity:]
	}

	e.state.TotalQueries++
	e.state.LastUpdated = now

	if topic != "" {
		p, ok := e.state.TopicProfiles[topic]
		if !ok {
			p = &TopicProfile{Weights: recommend.DefaultWeights}
			e.state.TopicProfiles[topic] = p
		}
		p.QueryCount++
		p.InterestEmbedding = exponentialMean(p.InterestEmbedding, queryEmbedding, p.QueryCount)
	}

	if int(e.state.TotalQueries)%e.adaptEveryN == 0 {
		e.adaptWeightsLocked(topic)
	}
}

// exponentialMean maintains a running mean weighted by 1/(1+age), where age
// is the observation index (n-th update).
func exponentialMean(prev, next []float32, n int64) []float32 {
	if prev == nil {
		out := make([]float32, len(next))
		copy(out, next)
		return out
	}
	if len(prev) != len(next) {
		return prev
	}
	weight := float32(1.0 / (1.0 + float64(n)))
	out := make([]float32, len(prev))
	for i := range prev {
		out[i] = prev[i]*(1-weight) + next[i]*weight
	}
	return out
}

// RecordFeedback bumps the explicit positive/negative counters for id.
func (e *Engine) RecordFeedback(id string, positive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fb, ok := e.state.ExplicitFeedback[id]
	if !ok {
		fb = &ExplicitFeedback{}
		e.state.ExplicitFeedback[id] = fb
	}
	if positive {
		fb.PositiveCount++
	} else {
		fb.NegativeCount++
	}
}

// ObserveRecommendationScore feeds the surrogate objective used by weight
// adaptation: the mean normalized recommendation score of recent successful
// retrievals.
func (e *Engine) ObserveRecommendationScore(score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recentScores = append(e.recentScores, score)
	if len(e.recentScores) > e.recentScoreCap {
		e.recentScores = e.recentScores[len(e.recentScores)-e.recentScoreCap:]
	}
}

func (e *Engine) surrogateObjective(w recommend.Weights) float64 {
	// Mean of recent observed scores scaled toward the candidate weights'
	// vector emphasis (a cheap proxy since we don't replay full retrievals
	// here), minus a penalty proportional to negative explicit feedback.
	var meanScore float64
	if len(e.recentScores) > 0 {
		var sum float64
		for _, s := range e.recentScores {
			sum += s
		}
		meanScore = sum / float64(len(e.recentScores))
	}
	var negatives int64
	for _, fb := range e.state.ExplicitFeedback {
		negatives += fb.NegativeCount
	}
	penalty := float64(negatives) * 0.01
	return meanScore*w.Vector + meanScore*0.5*(w.Recency+w.Frequency) - penalty
}

// AdaptWeights runs gradient-free coordinate search: for each of the three
// weights, try +/-delta and keep the variant maximizing the surrogate
// objective. The resulting profile is always normalized (non-negative,
// summing to 1). When topic is non-empty, the topic's profile is adapted
// instead of the global one.
func (e *Engine) AdaptWeights(topic string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adaptWeightsLocked(topic)
}

func (e *Engine) adaptWeightsLocked(topic string) {
	current := e.state.AdaptedWeights
	target := &e.state.AdaptedWeights
	if topic != "" {
		p, ok := e.state.TopicProfiles[topic]
		if !ok {
			p = &TopicProfile{Weights: recommend.DefaultWeights}
			e.state.TopicProfiles[topic] = p
		}
		current = p.Weights
		target = &p.Weights
	}

	best := recommend.NormalizeWeights(current)
	bestScore := e.surrogateObjective(best)

	coords := []func(recommend.Weights, float64) recommend.Weights{
		func(w recommend.Weights, d float64) recommend.Weights { w.Vector += d; return w },
		func(w recommend.Weights, d float64) recommend.Weights { w.Recency += d; return w },
		func(w recommend.Weights, d float64) recommend.Weights { w.Frequency += d; return w },
	}
	for _, mutate := range coords {
		for _, delta := range []float64{adaptDelta, -adaptDelta} {
			candidate := recommend.NormalizeWeights(mutate(current, delta))
			score := e.surrogateObjective(candidate)
			if score > bestScore {
				best = candidate
				bestScore = score
			}
		}
	}
	*target = best
}
