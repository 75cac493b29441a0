package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat turn outcomes.
const (
	OutcomeGrounded = "grounded"
	OutcomeNoScope  = "no_scope"
	OutcomeNoHits   = "no_hits"
	OutcomeError    = "error"
)

// Metrics holds the service's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chatTurns     *prometheus.CounterVec
	gatewayErrors *prometheus.CounterVec
	chunksIndexed *prometheus.CounterVec
	retrievalHits prometheus.Histogram
	stageDuration *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Failed embedding or completion calls.",
		}, []string{"gateway", "path"}),
		chunksIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks written by the indexer, by vector state.",
		}, []string{"state"}),
		retrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_hits",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 4, 8, 12},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.chatTurns, m.gatewayErrors, m.chunksIndexed, m.retrievalHits, m.stageDuration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(outcome).Inc()
}

// GatewayError counts a failed call. gateway is "embed" or "complete"; path
// is the pipeline that made the call (chat, index, backfill, summary).
func (m *Metrics) GatewayError(gateway, path string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(gateway, path).Inc()
}

func (m *Metrics) ChunksIndexed(embedded, pending int) {
	if m == nil {
		return
	}
	m.chunksIndexed.WithLabelValues("embedded").Add(float64(embedded))
	m.chunksIndexed.WithLabelValues("pending").Add(float64(pending))
}

func (m *Metrics) RetrievalHits(n int) {
	if m == nil {
		return
	}
	m.retrievalHits.Observe(float64(n))
}

// StageTimer starts a timer for stage; call ObserveDuration when it ends.
func (m *Metrics) StageTimer(stage string) *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(nil)
	}
	return prometheus.NewTimer(m.stageDuration.WithLabelValues(stage))
}
