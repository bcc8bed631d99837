package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	events       *prometheus.CounterVec
	persist      *prometheus.CounterVec
	viewers      prometheus.Gauge
	broadcasts   *prometheus.CounterVec
	recipients   *prometheus.CounterVec
	evictions    prometheus.Counter
	newsFetches  *prometheus.CounterVec
	sessionState prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder registered on reg.
// A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_events_total",
				Help: "Signal events by outcome (accepted, rejected, invalid)",
			},
			[]string{"result"},
		),
		persist: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_persist_writes_total",
				Help: "Durable store writes by outcome (ok, error, dropped)",
			},
			[]string{"result"},
		),
		viewers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgrid_viewers",
				Help: "Currently registered viewer connections",
			},
		),
		broadcasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_broadcasts_total",
				Help: "Broadcasts by payload kind",
			},
			[]string{"kind"},
		),
		recipients: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_broadcast_recipients_total",
				Help: "Messages enqueued to viewers by payload kind",
			},
			[]string{"kind"},
		),
		evictions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "signalgrid_viewer_evictions_total",
				Help: "Viewers closed by the heartbeat sweep",
			},
		),
		newsFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_news_fetches_total",
				Help: "News feed fetches by outcome",
			},
			[]string{"result"},
		),
		sessionState: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalgrid_session_polling",
				Help: "1 while the market-session scheduler is polling",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalgrid_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalgrid_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEvent(result string) {
	r.events.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordPersist(result string) {
	r.persist.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordViewers(n int) {
	r.viewers.Set(float64(n))
}

// RecordBroadcast counts one broadcast and the number of mailboxes it reached.
func (r *Recorder) RecordBroadcast(kind string, recipients int) {
	r.broadcasts.WithLabelValues(kind).Inc()
	r.recipients.WithLabelValues(kind).Add(float64(recipients))
}

func (r *Recorder) RecordEviction() {
	r.evictions.Inc()
}

func (r *Recorder) RecordNewsFetch(result string) {
	r.newsFetches.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordSessionState(polling bool) {
	if polling {
		r.sessionState.Set(1)
		return
	}
	r.sessionState.Set(0)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordEvent(string) {}
func (Nop) RecordPersist(string) {}
func (Nop) RecordViewers(int) {}
func (Nop) RecordBroadcast(string, int) {}
func (Nop) RecordEviction() {}
func (Nop) RecordNewsFetch(string) {}
func (Nop) RecordSessionState(bool) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
