// Package vectormirror provides the Library core's optional external vector
// index: a Qdrant-backed mirror of Stacks embeddings for large-corpus
// experimentation or migration tooling. It never replaces the exact-cosine
// default search path.
package vectormirror

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original Volume id in the Qdrant payload, since
// Qdrant point ids must be UUIDs or unsigned integers.
const payloadIDField = "_original_id"

// idNamespace scopes the deterministic UUIDs this mirror derives from
// non-UUID volume ids, so they can never collide with UUIDs another
// application mirrors into the same Qdrant deployment under a different
// namespace.
var idNamespace = uuid.MustParse("d291fde6-ed17-4f8e-9e8f-ad3a08fca025")

// Hit is a single nearest-neighbor result from the mirror. Score is always
// oriented so that a larger value means a closer match, regardless of which
// distance metric the collection was created with.
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Index is the Library core's optional ExternalVectorIndex collaborator.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Hit, error)
	Close() error
}

// metric names a distance function Qdrant can index a collection with,
// plus how to turn its raw hit score back into a higher-is-closer value.
type metric struct {
	distance qdrant.Distance
	toScore  func(raw float64) float64
}

var metricsByName = map[string]metric{
	"l2":        {qdrant.Distance_Euclid, distanceToScore},
	"euclidean": {qdrant.Distance_Euclid, distanceToScore},
	"manhattan": {qdrant.Distance_Manhattan, distanceToScore},
	"ip":        {qdrant.Distance_Dot, identityScore},
	"dot":       {qdrant.Distance_Dot, identityScore},
	"cosine":    {qdrant.Distance_Cosine, identityScore},
}

func distanceToScore(raw float64) float64 { return 1 / (1 + raw) }
func identityScore(raw float64) float64   { return raw }

func resolveMetric(name string) metric {
	if m, ok := metricsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m
	}
	return metricsByName["cosine"]
}

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     metric
}

// New connects to Qdrant over gRPC (default port 6334) and ensures the
// target collection exists with the requested dimension/metric.
func New(dsn, collection string, dimensions int, metricName string) (Index, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("qdrant requires dimensions > 0")
	}
	client, err := dialQdrant(dsn)
	if err != nil {
		return nil, err
	}
	idx := &qdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     resolveMetric(metricName),
	}
	if err := idx.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return idx, nil
}

func dialQdrant(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return client, nil
}

// ensureCollection tolerates a concurrent creator: two Library processes
// pointed at the same empty collection name can both pass the exists check
// and race into CreateCollection, so a late "already exists" from Qdrant is
// treated as success rather than a startup failure.
func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: q.metric.distance,
		}),
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return err
	}
	return nil
}

// pointID derives the Qdrant point id for a volume id: the id itself when
// it already parses as a UUID, otherwise a UUID deterministically derived
// from it under idNamespace so repeated upserts of the same volume always
// land on the same point.
func pointID(volumeID string) string {
	if _, err := uuid.Parse(volumeID); err == nil {
		return volumeID
	}
	return uuid.NewSHA1(idNamespace, []byte(volumeID)).String()
}

func (q *qdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	pid := pointID(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if pid != id {
		payload[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID(id))),
	})
	return err
}

func buildFilter(criteria map[string]string) *qdrant.Filter {
	if len(criteria) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(criteria))
	for k, v := range criteria {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

func hitToVolumeID(payload map[string]*qdrant.Value) (id string, metadata map[string]string) {
	metadata = make(map[string]string, len(payload))
	for k, v := range payload {
		if k == payloadIDField {
			id = v.GetStringValue()
			continue
		}
		metadata[k] = v.GetStringValue()
	}
	return id, metadata
}

func (q *qdrantIndex) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(results))
	for _, hit := range results {
		id, metadata := hitToVolumeID(hit.Payload)
		if id == "" {
			id = hit.Id.GetUuid()
		}
		if id == "" {
			id = hit.Id.String()
		}
		out = append(out, Hit{
			ID:       id,
			Score:    q.metric.toScore(float64(hit.Score)),
			Metadata: metadata,
		})
	}
	return out, nil
}

func (q *qdrantIndex) Dimension() int { return q.dimension }

func (q *qdrantIndex) Close() error { return q.client.Close() }
