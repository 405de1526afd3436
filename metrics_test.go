package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRequestMetricsMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestMetricsMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := httpRequests.WithLabelValues("GET", "/ping", "200")
	before := counterValue(t, counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ping", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	if got := counterValue(t, counter) - before; got != 1 {
		t.Errorf("/ping requests = %v, want 1", got)
	}
	if got := counterValue(t, httpRequests.WithLabelValues("GET", "unmatched", "404")); got < 1 {
		t.Errorf("unmatched requests = %v, want at least 1", got)
	}
}

func TestRecordReviewOutcome(t *testing.T) {
	counter := reviewCalls.WithLabelValues(reviewOutcomeMalformed)
	before := counterValue(t, counter)

	RecordReviewOutcome(reviewOutcomeMalformed)
	RecordReviewOutcome(reviewOutcomeMalformed)

	if got := counterValue(t, counter) - before; got != 2 {
		t.Errorf("malformed reviews = %v, want 2", got)
	}
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}
