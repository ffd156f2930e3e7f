package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetwatch_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assetwatch_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	devicesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetwatch_devices_total",
		Help: "Number of devices in the inventory.",
	})

	activeSessionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetwatch_active_sessions_total",
		Help: "Number of active (non-revoked, non-expired) durable sessions.",
	})

	openAlertsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetwatch_open_alerts_total",
		Help: "Number of unacknowledged alerts.",
	})

	loginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetwatch_login_failures_total",
		Help: "Number of failed login attempts.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, devicesTotal,
		activeSessionsTotal, openAlertsTotal, loginFailures)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}

// refreshGauges updates the inventory gauges from storage counts.
func (s *Server) refreshGauges(r *http.Request) {
	ctx := r.Context()
	if n, err := s.store.CountDevices(ctx); err == nil {
		devicesTotal.Set(float64(n))
	}
	if n, err := s.store.CountActiveSessions(ctx); err == nil {
		activeSessionsTotal.Set(float64(n))
	}
	if n, err := s.store.CountOpenAlerts(ctx); err == nil {
		openAlertsTotal.Set(float64(n))
	}
}
