// Package metrics exposes Prometheus collectors for the quiz flow and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors owns a private registry so tests can build as many as they like.
type Collectors struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stepsSubmitted  *prometheus.CounterVec
	quizzesDone     prometheus.Counter
	scores          prometheus.Histogram
	elapsed         prometheus.Histogram
	tokensRejected  *prometheus.CounterVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		stepsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_steps_submitted_total",
			Help: "Quiz step submissions by step and outcome",
		}, []string{"step", "outcome"}),
		quizzesDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_completed_total",
			Help: "Quizzes scored on the results page",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_score_percent",
			Help:    "Distribution of stored quiz scores",
			Buckets: prometheus.LinearBuckets(0, 20, 6),
		}),
		elapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_elapsed_seconds",
			Help:    "Time from the first step to the review page",
			Buckets: []float64{30, 60, 120, 300, 600, 1800},
		}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_tokens_rejected_total",
			Help: "Encoded form tokens that failed to decode",
		}, []string{"stage"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.stepsSubmitted,
		c.quizzesDone,
		c.scores,
		c.elapsed,
		c.tokensRejected,
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry is exposed for tests and extra collectors.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (c *Collectors) ObserveRequest(method, route string, status int, took time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (c *Collectors) StepSubmitted(step int, outcome string) {
	c.stepsSubmitted.WithLabelValues(strconv.Itoa(step), outcome).Inc()
}

func (c *Collectors) QuizCompleted(score int, elapsed time.Duration) {
	c.quizzesDone.Inc()
	c.scores.Observe(float64(score))
	if elapsed > 0 {
		c.elapsed.Observe(elapsed.Seconds())
	}
}

func (c *Collectors) TokenRejected(stage string) {
	c.tokensRejected.WithLabelValues(stage).Inc()
}
