// Package metrics exposes the publishing node's Prometheus collectors and a
// point-in-time snapshot of its publish statistics.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "framepub"

// Publish results used as the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// TopicStats holds the publish counters of one endpoint.
type TopicStats struct {
	Published       uint64    `json:"published"`
	Failed          uint64    `json:"failed"`
	LastError       string    `json:"last_error,omitempty"`
	LastPublishedAt time.Time `json:"last_published_at,omitempty"`
}

// Snapshot is a point-in-time view of a node's statistics.
type Snapshot struct {
	Node         string                `json:"node"`
	Ticks        uint64                `json:"ticks"`
	CounterValue int32                 `json:"counter_value"`
	PayloadBytes int                   `json:"payload_bytes"`
	Topics       map[string]TopicStats `json:"topics"`
	CollectedAt  time.Time             `json:"collected_at"`
}

// NodeMetrics tracks ticks and publish outcomes. Collectors can be used
// before Register; they are simply not exported until then.
type NodeMetrics struct {
	mu sync.RWMutex

	node         string
	ticks        uint64
	counterValue int32
	payloadBytes int
	topics       map[string]*TopicStats

	ticksTotal   prometheus.Counter
	publishTotal *prometheus.CounterVec
	tickDuration prometheus.Histogram
	counterGauge prometheus.Gauge
	payloadGauge prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// NewNodeMetrics creates collectors labelled with the node name. A nil
// registerer means prometheus.DefaultRegisterer.
func NewNodeMetrics(registerer prometheus.Registerer, node string) *NodeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"node": node}

	return &NodeMetrics{
		node:       node,
		topics:     make(map[string]*TopicStats),
		registerer: registerer,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ticks_total",
			Help:        "Number of timer ticks handled by the node",
			ConstLabels: labels,
		}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "publish_total",
			Help:        "Publish attempts by topic and result",
			ConstLabels: labels,
		}, []string{"topic", "result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "tick_duration_seconds",
			Help:        "Time spent handling one tick, publishes included",
			ConstLabels: labels,
			Buckets:     []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		counterGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "counter_value",
			Help:        "Counter value published on the most recent tick",
			ConstLabels: labels,
		}),
		payloadGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "payload_bytes",
			Help:        "Size of the most recent frame payload",
			ConstLabels: labels,
		}),
	}
}

// Register registers the collectors. Safe to call multiple times. When a
// collector with the same identity is already registered, the node adopts
// it so both instances count into the exported series.
func (m *NodeMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.ticksTotal, err = register(m.registerer, m.ticksTotal); err != nil {
		return err
	}
	if m.publishTotal, err = register(m.registerer, m.publishTotal); err != nil {
		return err
	}
	if m.tickDuration, err = register(m.registerer, m.tickDuration); err != nil {
		return err
	}
	if m.counterGauge, err = register(m.registerer, m.counterGauge); err != nil {
		return err
	}
	if m.payloadGauge, err = register(m.registerer, m.payloadGauge); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("metrics: existing collector has type %T: %w", are.ExistingCollector, err)
	}
	return existing, nil
}

// RecordTick records one handled tick.
func (m *NodeMetrics) RecordTick(d time.Duration, counter int32, payloadBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ticks++
	m.counterValue = counter
	m.payloadBytes = payloadBytes

	m.ticksTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.counterGauge.Set(float64(counter))
	m.payloadGauge.Set(float64(payloadBytes))
}

// RecordPublish records the outcome of one publish on topic.
func (m *NodeMetrics) RecordPublish(topic string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.topicStats(topic)
	if err != nil {
		stats.Failed++
		stats.LastError = err.Error()
		m.publishTotal.WithLabelValues(topic, ResultError).Inc()
		return
	}
	stats.Published++
	stats.LastPublishedAt = time.Now()
	m.publishTotal.WithLabelValues(topic, ResultOK).Inc()
}

// Snapshot returns a copy of the current statistics.
func (m *NodeMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Node:         m.node,
		Ticks:        m.ticks,
		CounterValue: m.counterValue,
		PayloadBytes: m.payloadBytes,
		Topics:       make(map[string]TopicStats, len(m.topics)),
		CollectedAt:  time.Now(),
	}
	for topic, stats := range m.topics {
		snap.Topics[topic] = *stats
	}
	return snap
}

// Reset clears all statistics (useful for testing).
func (m *NodeMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ticks = 0
	m.counterValue = 0
	m.payloadBytes = 0
	m.topics = make(map[string]*TopicStats)
	m.publishTotal.Reset()
	m.counterGauge.Set(0)
	m.payloadGauge.Set(0)
}

func (m *NodeMetrics) topicStats(topic string) *TopicStats {
	if stats, ok := m.topics[topic]; ok {
		return stats
	}
	stats := &TopicStats{}
	m.topics[topic] = stats
	return stats
}

// Handler serves the gatherer in the Prometheus exposition format. A nil
// gatherer means prometheus.DefaultGatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
