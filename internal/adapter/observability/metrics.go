package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_jobs_enqueued_total",
			Help: "Total number of jobs handed to the judging pool",
		},
		[]string{"language"},
	)
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_jobs_running",
			Help: "Number of jobs currently being judged",
		},
	)
	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_jobs_finished_total",
			Help: "Total number of finished jobs by aggregate verdict",
		},
		[]string{"verdict"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_queue_depth",
			Help: "Jobs waiting in the dispatch queue",
		},
	)
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_workers_active",
			Help: "Workers currently alive in the judging pool",
		},
	)

	CompileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_compile_duration_seconds",
			Help:    "Compilation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"language"},
	)
	CaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_case_duration_seconds",
			Help:    "Per-case execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"language"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsFinishedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(CompileDuration)
	prometheus.MustRegister(CaseDuration)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueJob(language string) {
	JobsEnqueuedTotal.WithLabelValues(language).Inc()
}

func StartJob() {
	JobsRunning.Inc()
}

func FinishJob(verdict string) {
	JobsRunning.Dec()
	JobsFinishedTotal.WithLabelValues(verdict).Inc()
}

func ObserveCompile(language string, seconds float64) {
	CompileDuration.WithLabelValues(language).Observe(seconds)
}

func ObserveCase(language string, seconds float64) {
	CaseDuration.WithLabelValues(language).Observe(seconds)
}
