package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signaldesk"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	busMessages *prometheus.CounterVec
	busLatency  *prometheus.HistogramVec
	votes       *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	confidence  prometheus.Histogram
	sniper      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	swept       *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's series with the default registerer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder's series with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		busMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "messages_total",
				Help:      "Messages dispatched on the bus",
			},
			[]string{"channel"},
		),
		busLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dispatch_seconds",
				Help:      "Time to deliver a message to every subscriber",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"channel"},
		),
		votes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_votes_total",
				Help:      "Agent votes by agent and decision",
			},
			[]string{"agent", "decision"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Consensus outcomes (emit, ghost, reject)",
			},
			[]string{"outcome"},
		),
		confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_confidence",
				Help:      "Composite confidence of consensus decisions",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		sniper: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sniper_results_total",
				Help:      "Sniper validator results by reason",
			},
			[]string{"reason"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Applied signal status transitions by target status",
			},
			[]string{"status"},
		),
		sweeps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "sweeps_total",
				Help:      "Completed expiry sweeps by kind",
			},
			[]string{"kind"},
		),
		swept: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "swept_signals_total",
				Help:      "Signals expired by sweeps",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordBusMessage(channel string, latencySeconds float64) {
	r.busMessages.WithLabelValues(channel).Inc()
	r.busLatency.WithLabelValues(channel).Observe(latencySeconds)
}

func (r *Recorder) RecordVote(agent, decision string) {
	r.votes.WithLabelValues(agent, decision).Inc()
}

// RecordDecision counts the outcome and observes its confidence.
func (r *Recorder) RecordDecision(outcome string, confidence int) {
	r.decisions.WithLabelValues(outcome).Inc()
	r.confidence.Observe(float64(confidence))
}

func (r *Recorder) RecordSniper(reason string) {
	r.sniper.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordTransition(to string) {
	r.transitions.WithLabelValues(to).Inc()
}

func (r *Recorder) RecordSweep(kind string, expired int) {
	r.sweeps.WithLabelValues(kind).Inc()
	r.swept.WithLabelValues(kind).Add(float64(expired))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
