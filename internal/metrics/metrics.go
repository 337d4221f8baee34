// Package metrics holds the Prometheus collectors of the comparador service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "comparador"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	scoringDuration  prometheus.Histogram
	lotsScored       prometheus.Counter
	evaluationsSaved prometheus.Counter
	eventsPublished  *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		scoringDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "compare_duration_seconds",
			Help:      "Time spent scoring and ranking all lots of a project.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		lotsScored: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "lots_scored_total",
			Help:      "Lots scored across all comparisons.",
		}),
		evaluationsSaved: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evaluations_saved_total",
			Help:      "Evaluation upserts accepted by the store.",
		}),
		eventsPublished: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the event client, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveComparison(lots int, d time.Duration) {
	if m == nil {
		return
	}
	m.scoringDuration.Observe(d.Seconds())
	m.lotsScored.Add(float64(lots))
}

func (m *Metrics) EvaluationSaved() {
	if m == nil {
		return
	}
	m.evaluationsSaved.Inc()
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}
