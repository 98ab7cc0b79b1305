package metrics

import (
	"time"

	"Aegis/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics and queue.Observer using Prometheus.
type Recorder struct {
	ingestTotal     *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	engineLatency   *prometheus.HistogramVec
	signalsTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	wsConnections   prometheus.Gauge
	wsMessagesTotal *prometheus.CounterVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_orderflow_ingest_total",
				Help: "Order-flow submissions by result",
			},
			[]string{"result"},
		),
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_jobs_total",
				Help: "Job deliveries by type and result (done, retry, failed)",
			},
			[]string{"type", "result"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_job_duration_seconds",
				Help:    "Job handling time",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		engineLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_decision_engine_seconds",
				Help:    "Decision engine call latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"result"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_signals_total",
				Help: "Signals created or transitioned, by status",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegis_queue_depth",
				Help: "Job queue size by state",
			},
			[]string{"state"},
		),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_realtime_connections",
			Help: "Open realtime connections",
		}),
		wsMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_realtime_messages_total",
				Help: "Realtime frames by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
}

func (r *Recorder) RecordIngest(result string) {
	r.ingestTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordEngineCall(result string, d time.Duration) {
	r.engineLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Recorder) RecordSignal(status string) {
	r.signalsTotal.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RealtimeConnected(delta int) {
	r.wsConnections.Add(float64(delta))
}

func (r *Recorder) RecordRealtimeMessage(direction, msgType string) {
	r.wsMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// ObserveJob implements queue.Observer.
func (r *Recorder) ObserveJob(msgType, result string, elapsed time.Duration) {
	r.jobsTotal.WithLabelValues(msgType, result).Inc()
	r.jobDuration.WithLabelValues(msgType).Observe(elapsed.Seconds())
}

// ObserveDepth implements queue.Observer.
func (r *Recorder) ObserveDepth(s queue.Stats) {
	r.queueDepth.WithLabelValues("ready").Set(float64(s.Ready))
	r.queueDepth.WithLabelValues("leased").Set(float64(s.Leased))
	r.queueDepth.WithLabelValues("retry").Set(float64(s.Retry))
	r.queueDepth.WithLabelValues("failed").Set(float64(s.Failed))
}
