package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"renter-registry/pkg/metrics"
)

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := mux.NewRouter()
	r.Use(Middleware(m))
	r.HandleFunc("/api/renters/{id}/history", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/renters/"+id+"/history", nil))
	}
	assert.Equal(t, 1, promtest.CollectAndCount(m.HTTPDuration))
	assert.Equal(t, 1, promtest.CollectAndCount(m.HTTPDuration.WithLabelValues("/api/renters/{id}/history", "GET", "404").(prometheus.Histogram)))
}

func TestRegisterPprof(t *testing.T) {
	mx := http.NewServeMux()
	RegisterPprof(mx)
	rec := httptest.NewRecorder()
	mx.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
