//go:build enterprise

package circulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"vellum/internal/telemetry"
)

// envelope is the wire shape for a job carried over Kafka: a thin wrapper
// around the in-process job payload with a correlation id for idempotency.
type envelope struct {
	CorrelationID string                `json:"correlationId"`
	Kind          Kind                  `json:"kind"`
	Extraction    ExtractionPayload     `json:"extraction,omitempty"`
	Compendium    CompendiumPayload     `json:"compendium,omitempty"`
	Reorg         ReorganizationPayload `json:"reorganization,omitempty"`
	Optimization  OptimizationPayload   `json:"optimization,omitempty"`
}

// IdempotencyStore guards against reprocessing the same job twice after a
// consumer restart or rebalance.
type IdempotencyStore interface {
	Seen(ctx context.Context, correlationID string) (bool, error)
	MarkSeen(ctx context.Context, correlationID string, ttl time.Duration) error
}

const (
	kafkaMaxAttempts  = 3
	kafkaBaseBackoff  = 200 * time.Millisecond
	dlqTopicSuffix    = ".dlq"
	transportJobDepth = 64
)

// KafkaTransport feeds a Desk's queue from a Kafka topic, for multi-process
// deployments. Fetched messages are handed to a pool of workerCount
// goroutines, each of which retries a transient idempotency-store failure
// with exponential backoff before giving up and publishing the message to a
// dead-letter topic. Messages that fail to decode are skipped, not retried.
type KafkaTransport struct {
	reader        *kafka.Reader
	writer        *kafka.Writer
	commandsTopic string
	desk          *Desk
	idempo        IdempotencyStore
	dedupeTTL     time.Duration
	workerCount   int
	log           *telemetry.Logger
}

// NewKafkaTransport builds a transport that reads job envelopes from
// commandsTopic and feeds them into desk using workerCount concurrent
// handlers. workerCount is clamped to at least 1.
func NewKafkaTransport(brokers []string, groupID, commandsTopic string, desk *Desk, idempo IdempotencyStore, dedupeTTL time.Duration, workerCount int, log *telemetry.Logger) *KafkaTransport {
	if log == nil {
		log = telemetry.Noop()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &KafkaTransport{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    commandsTopic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		writer:        &kafka.Writer{Addr: kafka.TCP(brokers...)},
		commandsTopic: commandsTopic,
		desk:          desk,
		idempo:        idempo,
		dedupeTTL:     dedupeTTL,
		workerCount:   workerCount,
		log:         log,
	}
}

// Publish enqueues a job envelope onto the commands topic for eventual
// delivery to whichever process's Run loop picks it up.
func (t *KafkaTransport) Publish(ctx context.Context, e envelope) error {
	if e.CorrelationID == "" {
		return errors.New("circulation: envelope requires a correlation id")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(ctx, kafka.Message{Topic: t.commandsTopic, Key: []byte(e.CorrelationID), Value: payload})
}

// Run fans fetched messages out across a worker pool and blocks until ctx
// is cancelled and every worker has drained.
func (t *KafkaTransport) Run(ctx context.Context) error {
	defer t.reader.Close()

	jobs := make(chan kafka.Message, transportJobDepth)
	done := make(chan struct{})
	for i := 0; i < t.workerCount; i++ {
		go func(workerID int) {
			defer func() {
				done <- struct{}{}
			}()
			for msg := range jobs {
				t.handleWithRetry(ctx, workerID, msg)
			}
		}(i)
	}

	for {
		if ctx.Err() != nil {
			break
		}
		msg, err := t.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			t.log.Warn("circulation kafka fetch failed", map[string]any{"error": err.Error()})
			continue
		}
		select {
		case jobs <- msg:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	for i := 0; i < t.workerCount; i++ {
		<-done
	}
	return ctx.Err()
}

// handleWithRetry retries a transient failure in handle up to
// kafkaMaxAttempts times with exponential backoff, publishes a dead-letter
// record once retries are exhausted, and commits the offset regardless of
// outcome so a poison message cannot block the partition forever.
func (t *KafkaTransport) handleWithRetry(ctx context.Context, workerID int, msg kafka.Message) {
	var lastErr error
	attempt := 0
	for {
		attempt++
		if err := t.handle(ctx, msg); err != nil {
			lastErr = err
			if attempt < kafkaMaxAttempts && ctx.Err() == nil {
				backoff := kafkaBaseBackoff * time.Duration(1<<uint(attempt-1))
				t.log.Warn("circulation kafka job failed, retrying", map[string]any{
					"worker": workerID, "attempt": attempt, "backoff": backoff.String(), "error": err.Error(),
				})
				sleepCtx, cancel := context.WithTimeout(ctx, backoff)
				<-sleepCtx.Done()
				cancel()
				continue
			}
			t.publishDLQ(ctx, msg, attempt, lastErr)
		}
		break
	}
	if err := t.reader.CommitMessages(ctx, msg); err != nil {
		t.log.Warn("circulation kafka commit failed", map[string]any{"error": err.Error()})
	}
}

// handle decodes and dispatches a single message. Decode failures are
// permanent (retrying a malformed payload never succeeds) and are reported
// as nil so the caller commits past them without a DLQ entry; idempotency
// store errors are transient and surfaced for handleWithRetry to retry.
func (t *KafkaTransport) handle(ctx context.Context, msg kafka.Message) error {
	var e envelope
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		t.log.Warn("circulation kafka envelope decode failed", map[string]any{"error": err.Error()})
		return nil
	}

	if t.idempo != nil {
		seen, err := t.idempo.Seen(ctx, e.CorrelationID)
		if err != nil {
			return fmt.Errorf("idempotency lookup: %w", err)
		}
		if seen {
			return nil
		}
	}

	t.dispatch(e)

	if t.idempo != nil {
		if err := t.idempo.MarkSeen(ctx, e.CorrelationID, t.dedupeTTL); err != nil {
			return fmt.Errorf("idempotency mark: %w", err)
		}
	}
	return nil
}

func (t *KafkaTransport) dispatch(e envelope) {
	switch e.Kind {
	case KindExtraction:
		t.desk.EnqueueExtraction(e.Extraction)
	case KindCompendium:
		t.desk.EnqueueCompendium(e.Compendium)
	case KindReorganization:
		t.desk.EnqueueReorganization(e.Reorg)
	case KindOptimization:
		t.desk.EnqueueOptimization(e.Optimization)
	default:
		t.log.Warn("circulation kafka unknown job kind", map[string]any{"kind": fmt.Sprint(e.Kind)})
	}
}

// publishDLQ writes a failure record for msg to <topic>.dlq after retries
// are exhausted, so an operator can inspect and replay it later.
func (t *KafkaTransport) publishDLQ(ctx context.Context, msg kafka.Message, attempts int, lastErr error) {
	corrID := string(msg.Key)
	record := map[string]any{
		"correlationId": corrID,
		"error":         fmt.Sprintf("transient failure after %d attempts: %v", attempts, lastErr),
		"payload":       json.RawMessage(msg.Value),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		t.log.Warn("circulation kafka dlq encode failed", map[string]any{"error": err.Error()})
		return
	}
	dlqTopic := t.commandsTopic + dlqTopicSuffix
	if err := t.writer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(corrID), Value: payload}); err != nil {
		t.log.Warn("circulation kafka dlq publish failed", map[string]any{"correlationId": corrID, "error": err.Error()})
		return
	}
	t.log.Warn("circulation kafka job sent to dlq", map[string]any{"correlationId": corrID, "topic": dlqTopic})
}

// Close releases the underlying writer.
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
