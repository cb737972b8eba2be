package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("imagehost", reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/images/metadata/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/images/metadata/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	}

	t.Run("labels use the route pattern", func(t *testing.T) {
		count := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "/api/images/metadata/{id}", "404"))
		assert.Equal(t, 3.0, count)
	})

	t.Run("in flight returns to zero", func(t *testing.T) {
		assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight))
	})

	t.Run("histograms observed", func(t *testing.T) {
		assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
		assert.Equal(t, 1, testutil.CollectAndCount(m.responseSize))
	})
}
