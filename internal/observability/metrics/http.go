package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal  *prometheus.CounterVec
	searchHitTotal       *prometheus.CounterVec
	searchNoResultsTotal *prometheus.CounterVec
	searchResultCount    *prometheus.HistogramVec
	searchDuration       *prometheus.HistogramVec
	uploadsTotal         *prometheus.CounterVec
	agentRunsTotal       *prometheus.CounterVec
	agentRounds          *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "talentsift",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful retrieval requests.",
		},
		[]string{"service", "endpoint"},
	)
	searchHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "search",
			Name:      "hit_total",
			Help:      "Total retrieval requests with at least one result.",
		},
		[]string{"service", "endpoint"},
	)
	searchNoResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "search",
			Name:      "no_results_total",
			Help:      "Total retrieval requests with an empty result set.",
		},
		[]string{"service", "endpoint"},
	)
	searchResultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "search",
			Name:      "result_count",
			Help:      "Distribution of fused results per successful request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Retrieval execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total resume uploads by acceptance status.",
		},
		[]string{"service", "status"},
	)
	agentRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total completed agent question runs by verdict.",
		},
		[]string{"service", "verdict"},
	)
	agentRounds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "agent",
			Name:      "rounds",
			Help:      "Distribution of retrieval rounds per agent run.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchHitTotal,
		searchNoResultsTotal,
		searchResultCount,
		searchDuration,
		uploadsTotal,
		agentRunsTotal,
		agentRounds,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		searchRequestsTotal:  searchRequestsTotal,
		searchHitTotal:       searchHitTotal,
		searchNoResultsTotal: searchNoResultsTotal,
		searchResultCount:    searchResultCount,
		searchDuration:       searchDuration,
		uploadsTotal:         uploadsTotal,
		agentRunsTotal:       agentRunsTotal,
		agentRounds:          agentRounds,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/runs/"):
		return "/v1/runs/{run_id}"
	case strings.HasPrefix(path, "/v1/candidates/"):
		return "/v1/candidates/{candidate_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint string, resultCount int, duration time.Duration) {
	m.searchRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.searchResultCount.WithLabelValues(service, endpoint).Observe(float64(resultCount))
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if resultCount > 0 {
		m.searchHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.searchNoResultsTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordUpload(service string, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	m.uploadsTotal.WithLabelValues(service, status).Inc()
}

func (m *HTTPServerMetrics) RecordAgentRun(service, verdict string, rounds int) {
	if verdict == "" {
		verdict = "unknown"
	}
	m.agentRunsTotal.WithLabelValues(service, verdict).Inc()
	if rounds > 0 {
		m.agentRounds.WithLabelValues(service).Observe(float64(rounds))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
