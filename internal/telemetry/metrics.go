package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics wraps an OTel meter with an instrument cache so call sites can
// increment counters and record histograms by name without holding onto
// instrument handles themselves.
type Metrics struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		meter:      otel.Meter(namespace),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *Metrics) getCounter(name string) metric.Float64Counter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c
	}
	c, _ = m.meter.Float64Counter(name)
	m.counters[name] = c
	return c
}

func (m *Metrics) getHistogram(name string) metric.Float64Histogram {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.histograms[name]; ok {
		return h
	}
	h, _ = m.meter.Float64Histogram(name)
	m.histograms[name] = h
	return h
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (m *Metrics) IncCounter(name string, labels map[string]string) {
	m.getCounter(name).Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

func (m *Metrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.getHistogram(name).Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}
