package observability

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registerOnce sync.Once

func initOnce() {
	registerOnce.Do(InitMetrics)
}

func TestInitMetricsRegistersOnce(t *testing.T) {
	initOnce()
	// Re-registering the same collectors must panic; InitMetrics is
	// expected to run exactly once per process.
	assert.Panics(t, func() { InitMetrics() })
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	initOnce()

	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs/1")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobLifecycleHelpers(t *testing.T) {
	initOnce()

	EnqueueJob("Rust")
	StartJob()
	FinishJob("Accepted")
	StartJob()
	FinishJob("Wrong Answer")
	ObserveCompile("Rust", 0.8)
	ObserveCase("Rust", 0.02)
	QueueDepth.Set(3)
	WorkersActive.Set(2)
}
