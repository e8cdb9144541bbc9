package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Send attempts partitioned by outcome: sent or failed
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sends_total",
			Help: "Total number of send attempts",
		},
		[]string{"result"},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_send_duration_seconds",
			Help:    "Time spent in a single send attempt, including dialing",
			Buckets: prometheus.DefBuckets,
		},
	)

	EndpointDeaths = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_endpoint_deaths_total",
			Help: "Number of times an endpoint was retired after consecutive failures",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_jobs_running",
			Help: "Number of job loops currently dispatching",
		},
	)

	// Loop exits partitioned by reason: completed, paused, exhausted, shutdown
	JobExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_job_exits_total",
			Help: "Number of job loop exits by reason",
		},
		[]string{"reason"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request counts and latencies. Routes are labeled by
// their chi pattern to keep cardinality low.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
