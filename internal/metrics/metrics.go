package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"digitflow/internal/retrain"
)

const namespace = "digitflow"

// Registry owns a private Prometheus registry and the digitflow collectors.
type Registry struct {
	reg *prometheus.Registry

	predictions      *prometheus.CounterVec
	predictionErrors prometheus.Counter
	corrections      prometheus.Counter
	reloads          *prometheus.CounterVec
	cycles           *prometheus.CounterVec
	unprocessed      prometheus.Gauge
	cycleDuration    prometheus.Histogram
}

// New builds a Registry with process and Go runtime collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by predicted label.",
		}, []string{"label"}),
		predictionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Prediction requests that failed.",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Corrections recorded.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Model reload attempts, by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrain_cycles_total",
			Help:      "Retraining cycles, by outcome.",
		}, []string{"outcome"}),
		unprocessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unprocessed_corrections",
			Help:      "Unprocessed corrections seen by the last retraining check.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrain_duration_seconds",
			Help:      "Wall time of retraining cycles that trained a model.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.predictions,
		r.predictionErrors,
		r.corrections,
		r.reloads,
		r.cycles,
		r.unprocessed,
		r.cycleDuration,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) ObservePrediction(label int) {
	r.predictions.WithLabelValues(strconv.Itoa(label)).Inc()
}

func (r *Registry) ObservePredictionError() {
	r.predictionErrors.Inc()
}

func (r *Registry) ObserveCorrection() {
	r.corrections.Inc()
}

func (r *Registry) ObserveReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	r.reloads.WithLabelValues(result).Inc()
}

// ObserveCycle records a finished retraining cycle. Cycles that stopped at
// the threshold check do not feed the duration histogram.
func (r *Registry) ObserveCycle(out retrain.Outcome) {
	r.cycles.WithLabelValues(string(out.Result)).Inc()
	r.unprocessed.Set(float64(out.Unprocessed))
	if out.Result != retrain.ResultSkipped {
		r.cycleDuration.Observe(out.Duration().Seconds())
	}
}
