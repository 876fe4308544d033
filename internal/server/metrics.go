package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts HTTP requests by route and status code
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janus_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "code"})

	// requestDuration tracks handler latency
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "janus_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"route"})

	// analysesTotal counts experiment evaluations by input source and result
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janus_analyses_total",
		Help: "Experiment evaluations by input source and result",
	}, []string{"source", "result"})

	// analysisDuration tracks how long one evaluation takes
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "janus_analysis_duration_seconds",
		Help:    "Experiment evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// observationsRecorded counts stored observation rows
	observationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "janus_observations_recorded_total",
		Help: "Observation rows written to the store",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency under route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.log.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	}
}
