package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the Prometheus instruments used across the pipeline,
// trainer and API. Registration happens on construction via promauto.
// A nil Recorder is a valid no-op, so callers never need to branch on
// whether metrics are enabled.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	pipelineRuns    *prometheus.CounterVec
	pipelineRows    *prometheus.CounterVec
	instrumentFails *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	trainingRMSE    *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers the metrics recorder.
func New() *Recorder {
	return &Recorder{
		pipelineRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "augur",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		pipelineRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "augur",
				Subsystem: "pipeline",
				Name:      "feature_rows_total",
				Help:      "Feature rows written per ticker",
			},
			[]string{"ticker"},
		),
		instrumentFails: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "augur",
				Subsystem: "pipeline",
				Name:      "instrument_failures_total",
				Help:      "Instruments that failed feature computation",
			},
			[]string{"stage"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "augur",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "augur",
				Subsystem: "model",
				Name:      "predictions_total",
				Help:      "Predictions written by horizon",
			},
			[]string{"horizon"},
		),
		trainingRMSE: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "augur",
				Subsystem: "model",
				Name:      "training_rmse",
				Help:      "Mean walk-forward RMSE of the latest training run",
			},
			[]string{"horizon"},
		),
		httpRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "augur",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by route and status",
			},
			[]string{"route", "status"},
		),
		httpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "augur",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// RecordPipelineRun records a completed pipeline run.
func (r *Recorder) RecordPipelineRun(outcome string) {
	if r == nil {
		return
	}
	r.pipelineRuns.WithLabelValues(outcome).Inc()
}

// RecordFeatureRows records feature rows written for a ticker.
func (r *Recorder) RecordFeatureRows(ticker string, n int) {
	if r == nil {
		return
	}
	r.pipelineRows.WithLabelValues(ticker).Add(float64(n))
}

// RecordInstrumentFailure records a per-instrument failure in a stage.
func (r *Recorder) RecordInstrumentFailure(stage string) {
	if r == nil {
		return
	}
	r.instrumentFails.WithLabelValues(stage).Inc()
}

// RecordStageDuration records how long a pipeline stage took.
func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPredictions records predictions written for a horizon.
func (r *Recorder) RecordPredictions(horizon string, n int) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(horizon).Add(float64(n))
}

// RecordTrainingRMSE publishes the aggregate RMSE of a training run.
func (r *Recorder) RecordTrainingRMSE(horizon string, rmse float64) {
	if r == nil {
		return
	}
	r.trainingRMSE.WithLabelValues(horizon).Set(rmse)
}

// RecordHTTPRequest records one served API request.
func (r *Recorder) RecordHTTPRequest(route, status string, seconds float64) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(seconds)
}
