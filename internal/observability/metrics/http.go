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
	rejectedTotal   *prometheus.CounterVec

	ragRequestsTotal   *prometheus.CounterVec
	ragNoContextTotal  *prometheus.CounterVec
	ragWebAugmented    *prometheus.CounterVec
	ragContextPassages *prometheus.HistogramVec
	ragDuration        *prometheus.HistogramVec
	indexOutcomesTotal *prometheus.CounterVec
	indexChunks        *prometheus.HistogramVec
	indexDuration      *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiting or backpressure.",
		},
		[]string{"service", "reason"},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total successful question-answering requests by pipeline mode.",
		},
		[]string{"service", "mode"},
	)
	ragNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total answers generated without any context passage.",
		},
		[]string{"service"},
	)
	ragWebAugmented := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "web_augmented_total",
			Help:      "Total answers whose context included a web search summary.",
		},
		[]string{"service"},
	)
	ragContextPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "context_passages",
			Help:      "Distribution of context passages per answer.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 13},
		},
		[]string{"service"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Question-answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	indexOutcomesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "index",
			Name:      "outcomes_total",
			Help:      "Index requests by outcome (indexed, skipped, queued, error).",
		},
		[]string{"service", "outcome"},
	)
	indexChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Distribution of chunks written per indexed document.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
		},
		[]string{"service"},
	)
	indexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "index",
			Name:      "duration_seconds",
			Help:      "Synchronous indexing duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		ragRequestsTotal,
		ragNoContextTotal,
		ragWebAugmented,
		ragContextPassages,
		ragDuration,
		indexOutcomesTotal,
		indexChunks,
		indexDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		rejectedTotal:      rejectedTotal,
		ragRequestsTotal:   ragRequestsTotal,
		ragNoContextTotal:  ragNoContextTotal,
		ragWebAugmented:    ragWebAugmented,
		ragContextPassages: ragContextPassages,
		ragDuration:        ragDuration,
		indexOutcomesTotal: indexOutcomesTotal,
		indexChunks:        indexChunks,
		indexDuration:      indexDuration,
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

// normalizePath keeps content hashes out of label values.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/index/"):
		return "/v1/index/{hash}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRAGObservation(service, mode string, passages int, webAugmented bool, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.ragRequestsTotal.WithLabelValues(service, mode).Inc()
	m.ragContextPassages.WithLabelValues(service).Observe(float64(passages))
	m.ragDuration.WithLabelValues(service, mode).Observe(duration.Seconds())

	if webAugmented {
		m.ragWebAugmented.WithLabelValues(service).Inc()
	}
	if passages == 0 {
		m.ragNoContextTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordIndexOutcome(service, outcome string, chunks int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.indexOutcomesTotal.WithLabelValues(service, outcome).Inc()
	if chunks > 0 {
		m.indexChunks.WithLabelValues(service).Observe(float64(chunks))
	}
	if duration > 0 {
		m.indexDuration.WithLabelValues(service).Observe(duration.Seconds())
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
