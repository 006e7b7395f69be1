package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/quality-check/internal/prediction"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	analysisTotal    *prometheus.CounterVec
	predictionsTotal *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quality",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quality",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quality",
			Subsystem: "analysis",
			Name:      "total",
			Help:      "Analysis requests by outcome.",
		},
		[]string{"outcome"},
	)
	predictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quality",
			Subsystem: "analysis",
			Name:      "predictions_total",
			Help:      "Stored predictions, good or other.",
		},
		[]string{"status"},
	)

	registry.MustRegister(requestTotal, requestDuration, analysisTotal, predictionsTotal)

	return &Metrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		analysisTotal:    analysisTotal,
		predictionsTotal: predictionsTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. Unmatched routes share one
// path label so arbitrary URLs cannot grow the series count.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.requestTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(started).Seconds())
	}
}

// RecordAnalysis counts one analysis outcome and, when the analysis
// succeeded, its stored status. The status comes from the remote endpoint
// verbatim, so it is folded into two label values.
func (m *Metrics) RecordAnalysis(outcome, status string) {
	m.analysisTotal.WithLabelValues(outcome).Inc()
	if status != "" {
		m.predictionsTotal.WithLabelValues(statusLabel(status)).Inc()
	}
}

func statusLabel(status string) string {
	if prediction.RawPredictionFor(status) == 1 {
		return prediction.GoodStatus
	}
	return "other"
}
