package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch(time.Millisecond)
		m.IncResult("HIGH")
		m.ObserveLookup("phone", time.Millisecond, errors.New("x"))
		m.IncNormalizationFailure("PHONE")
		m.AddPolicyDowngrades(2)
		m.IncIntake("created")
		m.IncSweepProfile()
		m.IncSweepSuspect()
		m.IncSweepError()
		m.SetSweepQueueDepth(3)
		m.ObserveSweep(time.Second)
		m.IncConfigReload("ok")
		m.SetBreakerState("candidates", 1)
		m.IncBreakerCall("candidates", "rejected")
		m.ObserveHTTP("/api/search", "POST", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLookup("phone", time.Millisecond, nil)
	m.ObserveLookup("phone", time.Millisecond, errors.New("timeout"))
	m.AddPolicyDowngrades(2)
	m.AddPolicyDowngrades(0)
	m.IncIntake("created")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupFailures.WithLabelValues("phone")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyDowngrades))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntakeOutcomes.WithLabelValues("created")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncResult("EXACT")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `renter_registry_search_results_total{confidence="EXACT"} 1`))
}

func TestNewWithNilRegistererDoesNotRegister(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
