package main

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	reviewOutcomeOK         = "ok"
	reviewOutcomeMalformed  = "malformed"
	reviewOutcomeNoResponse = "no_response"

	panelModeDeliberated = "deliberated"
	panelModeFallback    = "fallback"
)

var (
	registerOnce sync.Once

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "motion_review",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by result.",
		},
		[]string{"result"},
	)
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "motion_review",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each pipeline phase in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	reviewCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "motion_review",
			Subsystem: "reviews",
			Name:      "total",
			Help:      "Review assignments by outcome.",
		},
		[]string{"outcome"},
	)
	panelRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "motion_review",
			Subsystem: "panels",
			Name:      "total",
			Help:      "Deliberation panels by mode.",
		},
		[]string{"mode"},
	)
	ratificationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "motion_review",
			Subsystem: "ratification",
			Name:      "outcomes_total",
			Help:      "Ratification outcomes.",
		},
		[]string{"outcome", "threshold"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "motion_review",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

// RegisterMetrics registers collectors with the default registry; safe to call repeatedly
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(pipelineRuns, phaseDuration, reviewCalls, panelRuns, ratificationOutcomes, httpRequests)
	})
}

func RecordPipelineRun(result string) {
	RegisterMetrics()
	pipelineRuns.WithLabelValues(result).Inc()
}

func RecordPhase(phase string, d time.Duration) {
	RegisterMetrics()
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func RecordReviewOutcome(outcome string) {
	RegisterMetrics()
	reviewCalls.WithLabelValues(outcome).Inc()
}

func RecordPanel(mode string) {
	RegisterMetrics()
	panelRuns.WithLabelValues(mode).Inc()
}

func RecordRatification(vote RatificationVote) {
	RegisterMetrics()
	ratificationOutcomes.WithLabelValues(string(vote.Outcome), string(vote.ThresholdType)).Inc()
}

// RequestMetricsMiddleware counts HTTP requests by route
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RegisterMetrics()
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
