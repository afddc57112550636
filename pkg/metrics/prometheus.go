package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	providerRequests *prometheus.CounterVec
	retries          *prometheus.CounterVec
	failovers        *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	streamMessages   *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	activeStreams    prometheus.Gauge
	ticksSent        *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder registered on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_provider_requests_total",
				Help: "Upstream provider requests by result",
			},
			[]string{"provider", "result"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_provider_retries_total",
				Help: "Retries issued against the same provider",
			},
			[]string{"provider"},
		),
		failovers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_provider_failovers_total",
				Help: "Failovers from one provider to the next in the chain",
			},
			[]string{"from", "to"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cache_lookups_total",
				Help: "Market data cache lookups by result",
			},
			[]string{"result"},
		),
		streamMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_stream_messages_total",
				Help: "Streaming updates fanned out, by provider",
			},
			[]string{"provider"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_stream_reconnects_total",
				Help: "WebSocket reconnect attempts",
			},
			[]string{"key"},
		),
		activeStreams: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_active_streams",
				Help: "Number of live subscription entries",
			},
		),
		ticksSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_ticks_sent_total",
				Help: "Ticks written to the recorder backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordProviderRequest(provider, result string) {
	r.providerRequests.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) RecordRetry(provider string) {
	r.retries.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordFailover(from, to string) {
	r.failovers.WithLabelValues(from, to).Inc()
}

func (r *Recorder) RecordCacheLookup(result string) {
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordStreamMessage(provider string) {
	r.streamMessages.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordReconnect(key string) {
	r.reconnects.WithLabelValues(key).Inc()
}

func (r *Recorder) SetActiveStreams(n int) {
	r.activeStreams.Set(float64(n))
}

// RecordTickSent records a tick written to a recorder backend.
func (r *Recorder) RecordTickSent(backend, symbol string) {
	r.ticksSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards every observation. Used in tests and when metrics are disabled.
type Noop struct{}

func (Noop) RecordProviderRequest(string, string) {}
func (Noop) RecordRetry(string)                   {}
func (Noop) RecordFailover(string, string)        {}
func (Noop) RecordCacheLookup(string)             {}
func (Noop) RecordStreamMessage(string)           {}
func (Noop) RecordReconnect(string)               {}
func (Noop) SetActiveStreams(int)                 {}
func (Noop) RecordTickSent(string, string)        {}
func (Noop) RecordError(string)                   {}
func (Noop) RecordLatency(string, float64)        {}
