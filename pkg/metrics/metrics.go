package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "renter_registry"

// Metrics holds every collector the service exports. All methods are nil-safe
// so components can run without metrics in tests.
type Metrics struct {
	// Search path
	SearchLatency         prometheus.Histogram
	SearchResults         *prometheus.CounterVec // by confidence
	LookupLatency         *prometheus.HistogramVec
	LookupFailures        *prometheus.CounterVec
	NormalizationFailures *prometheus.CounterVec
	PolicyDowngrades      prometheus.Counter

	// Intake
	IntakeOutcomes *prometheus.CounterVec

	// Duplicate sweep
	SweepProfiles   prometheus.Counter
	SweepSuspects   prometheus.Counter
	SweepErrors     prometheus.Counter
	SweepQueueDepth prometheus.Gauge
	SweepDuration   prometheus.Histogram

	ConfigReloads *prometheus.CounterVec

	// Circuit breakers, by breaker name
	BreakerState *prometheus.GaugeVec
	BreakerCalls *prometheus.CounterVec // by name and result

	HTTPDuration *prometheus.HistogramVec // by route, method and code
}

// New creates and registers the collectors on reg. A nil reg builds
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of a full search including candidate lookups",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SearchResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_results_total",
			Help:      "Returned match results by confidence",
		}, []string{"confidence"}),
		LookupLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_lookup_duration_seconds",
			Help:      "Duration of candidate lookups by source",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"source"}),
		LookupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_lookup_failures_total",
			Help:      "Candidate lookups that failed or timed out, by source",
		}, []string{"source"}),
		NormalizationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_failures_total",
			Help:      "Input identifiers dropped because they could not be normalized",
		}, []string{"kind"}),
		PolicyDowngrades: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_downgrades_total",
			Help:      "Results lowered to MEDIUM for lacking a strong identifier",
		}),
		IntakeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_outcomes_total",
			Help:      "Intake resolutions by outcome",
		}, []string{"outcome"}),
		SweepProfiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_profiles_total",
			Help:      "Profiles re-checked by the duplicate sweep",
		}),
		SweepSuspects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_suspects_total",
			Help:      "Duplicate suspect pairs recorded",
		}),
		SweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweep jobs that failed",
		}),
		SweepQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_queue_depth",
			Help:      "Profiles waiting in the sweep queue",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_run_duration_seconds",
			Help:      "Duration of one sweep pass",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ConfigReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result",
		}, []string{"result"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed,1=open,2=half-open)",
		}, []string{"name"}),
		BreakerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_calls_total",
			Help:      "Calls through a circuit breaker by result",
		}, []string{"name", "result"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route template",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

func (m *Metrics) ObserveSearch(d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncResult(confidence string) {
	if m != nil {
		m.SearchResults.WithLabelValues(confidence).Inc()
	}
}

// ObserveLookup records one candidate lookup; failed lookups are counted too.
func (m *Metrics) ObserveLookup(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.LookupFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncNormalizationFailure(kind string) {
	if m != nil {
		m.NormalizationFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) AddPolicyDowngrades(n int) {
	if m != nil && n > 0 {
		m.PolicyDowngrades.Add(float64(n))
	}
}

func (m *Metrics) IncIntake(outcome string) {
	if m != nil {
		m.IntakeOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncSweepProfile() {
	if m != nil {
		m.SweepProfiles.Inc()
	}
}

func (m *Metrics) IncSweepSuspect() {
	if m != nil {
		m.SweepSuspects.Inc()
	}
}

func (m *Metrics) IncSweepError() {
	if m != nil {
		m.SweepErrors.Inc()
	}
}

func (m *Metrics) SetSweepQueueDepth(n int) {
	if m != nil {
		m.SweepQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncConfigReload(result string) {
	if m != nil {
		m.ConfigReloads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(float64(state))
	}
}

// IncBreakerCall counts one call; result is success, failure, rejected or slow.
func (m *Metrics) IncBreakerCall(name, result string) {
	if m != nil {
		m.BreakerCalls.WithLabelValues(name, result).Inc()
	}
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
	}
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
