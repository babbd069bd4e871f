package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	exchangesTotal *prometheus.CounterVec
)

// RegisterMetrics inicializa las métricas y devuelve el handler para /metrics.
func RegisterMetrics(registry prometheus.Registerer) http.Handler {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duración de las requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		exchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_exchanges_total",
			Help: "Canjes de tokens por grant_type y resultado",
		}, []string{"grant_type", "result"})

		registry.MustRegister(httpRequestsTotal, httpRequestDuration, exchangesTotal)
	})

	if g, ok := registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func observeRequest(method, path string, status int, dur time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

func observeExchange(grantType, result string) {
	if exchangesTotal == nil {
		return
	}
	if grantType == "" {
		grantType = "unknown"
	}
	exchangesTotal.WithLabelValues(grantType, result).Inc()
}
