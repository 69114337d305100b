package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersAreNoopsWhenDisabled(t *testing.T) {
	SetEnabled(false)
	t.Cleanup(func() { SetEnabled(false) })

	assert.NotPanics(t, func() {
		RecordFetch("search", 200, time.Millisecond)
		RecordAssembly("complete", time.Now())
		RecordDropped("malformed_entry")
	})
}

func TestRecordFetchCounts(t *testing.T) {
	SetEnabled(true)
	t.Cleanup(func() { SetEnabled(false) })

	RecordFetch("search", 200, time.Millisecond)
	RecordFetch("search", 200, time.Millisecond)
	RecordFetch("search", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(fhirFetchTotal.WithLabelValues("search", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fhirFetchTotal.WithLabelValues("search", "404")))
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	SetEnabled(true)
	t.Cleanup(func() { SetEnabled(false) })

	r := mux.NewRouter()
	r.Use(MetricsMiddleware)
	r.HandleFunc("/records/{encounterID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/records/abc", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/records/{encounterID}", "418")))
}
