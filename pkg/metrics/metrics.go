// Package metrics wires the Coordinator's per-iteration observations
// into Prometheus (SPEC_FULL.md §4.1 NEW): sync duration, readiness
// counts, pipeline duration, submit duration. Purely additive
// instrumentation — a Recorder must never affect control flow or error
// classification.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the interface the Coordinator depends on, so tests can
// substitute a no-op implementation without a registry.
type Recorder interface {
	ObserveSyncDuration(seconds float64)
	ObserveReadiness(appendReady, nullifyReady int)
	ObservePipelineDuration(seconds float64)
	ObserveSubmitDuration(seconds float64)
	IncRetries(reason string)
	IncIterations(outcome string)
}

// PrometheusRecorder is the real Recorder, registered against a
// dedicated registry so a forester embedding this package doesn't
// collide with the default global one.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	syncDuration     prometheus.Histogram
	pipelineDuration prometheus.Histogram
	submitDuration   prometheus.Histogram
	appendReadyGauge prometheus.Gauge
	nullifyReadyGauge prometheus.Gauge
	retriesCounter   *prometheus.CounterVec
	iterationsCounter *prometheus.CounterVec
}

// New constructs a PrometheusRecorder and registers its collectors
// against a fresh registry, returned alongside so the caller can expose
// it via promhttp.HandlerFor.
func New() (*PrometheusRecorder, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	r := &PrometheusRecorder{
		registry: reg,
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "forester_sync_duration_seconds",
			Help: "Duration of the coordinator's per-iteration sync step.",
		}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "forester_pipeline_duration_seconds",
			Help: "Duration of the Prepare/Prove/Submit pipeline per iteration.",
		}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "forester_submit_duration_seconds",
			Help: "Duration of Stage 3's on-chain submission per group.",
		}),
		appendReadyGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forester_append_ready",
			Help: "Number of ready append sub-batches as of the last readiness count.",
		}),
		nullifyReadyGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forester_nullify_ready",
			Help: "Number of ready nullify sub-batches as of the last readiness count.",
		}),
		retriesCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forester_retries_total",
			Help: "Total retries by classification reason.",
		}, []string{"reason"}),
		iterationsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forester_iterations_total",
			Help: "Total coordinator iterations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.syncDuration,
		r.pipelineDuration,
		r.submitDuration,
		r.appendReadyGauge,
		r.nullifyReadyGauge,
		r.retriesCounter,
		r.iterationsCounter,
	)

	return r, reg
}

func (r *PrometheusRecorder) ObserveSyncDuration(seconds float64)     { r.syncDuration.Observe(seconds) }
func (r *PrometheusRecorder) ObservePipelineDuration(seconds float64) { r.pipelineDuration.Observe(seconds) }
func (r *PrometheusRecorder) ObserveSubmitDuration(seconds float64)   { r.submitDuration.Observe(seconds) }

func (r *PrometheusRecorder) ObserveReadiness(appendReady, nullifyReady int) {
	r.appendReadyGauge.Set(float64(appendReady))
	r.nullifyReadyGauge.Set(float64(nullifyReady))
}

func (r *PrometheusRecorder) IncRetries(reason string) {
	r.retriesCounter.WithLabelValues(reason).Inc()
}

func (r *PrometheusRecorder) IncIterations(outcome string) {
	r.iterationsCounter.WithLabelValues(outcome).Inc()
}

// NoOp is a Recorder that discards every observation — the default when
// a Coordinator is constructed without metrics wiring (e.g. in tests).
type NoOp struct{}

func (NoOp) ObserveSyncDuration(float64)         {}
func (NoOp) ObserveReadiness(int, int)           {}
func (NoOp) ObservePipelineDuration(float64)     {}
func (NoOp) ObserveSubmitDuration(float64)       {}
func (NoOp) IncRetries(string)                   {}
func (NoOp) IncIterations(string)                {}
