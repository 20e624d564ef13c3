package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"renter-registry/pkg/logging"
	"renter-registry/pkg/metrics"
)

// State represents the circuit breaker state
// Closed: normal operation; HalfOpen: probing; Open: fail fast
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "closed"
}

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout    time.Duration // per-call timeout
	OpenFor             time.Duration // how long to stay open before probing
	MaxConsecFailures   int           // consecutive failures to open
	WindowSize          int           // sliding window of recent calls
	MinSamples          int           // calls in the window before rates apply
	FailureRate         float64       // 0..1 fraction in window to open
	SlowCallThreshold   time.Duration // duration over which a call is considered slow
	SlowCallRate        float64       // 0..1 fraction in window to open
	HalfOpenMaxInFlight int           // concurrent probes while half-open
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

// result in the ring buffer
type sample struct {
	success bool
	slow    bool
}

type Breaker struct {
	cfg        Config
	mu         sync.Mutex
	st         State
	nextProbe  time.Time
	consecFail int
	probes     int

	win  []sample
	idx  int
	used int

	log     *logging.ComponentLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

func WithLogger(l *logging.Logger) Option {
	return func(b *Breaker) { b.log = l.WithComponent("circuit") }
}

func WithMetrics(m *metrics.Metrics) Option { return func(b *Breaker) { b.metrics = m } }

func WithClock(now func() time.Time) Option { return func(b *Breaker) { b.now = now } }

func New(cfg Config, opts ...Option) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.WindowSize / 2
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	b := &Breaker{
		cfg: cfg,
		st:  Closed,
		win: make([]sample, cfg.WindowSize),
		log: logging.Nop().WithComponent("circuit"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.metrics.SetBreakerState(cfg.Name, int(Closed))
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	switch st {
	case Open:
		b.nextProbe = b.now().Add(b.cfg.OpenFor)
	case Closed:
		b.consecFail = 0
		b.used, b.idx = 0, 0
	}
	b.metrics.SetBreakerState(b.cfg.Name, int(st))
	b.log.Info("breaker state change", logging.String("name", b.cfg.Name), logging.String("state", st.String()))
}

// record adds a sample into ring and checks thresholds
func (b *Breaker) record(success bool, slow bool) {
	b.win[b.idx] = sample{success: success, slow: slow}
	if b.used < len(b.win) {
		b.used++
	}
	b.idx = (b.idx + 1) % len(b.win)

	if b.st != Closed {
		return
	}
	if b.cfg.MaxConsecFailures > 0 && b.consecFail >= b.cfg.MaxConsecFailures {
		b.setStateLocked(Open)
		return
	}
	if b.used < b.cfg.MinSamples {
		return
	}
	fail, slowN := 0, 0
	for i := 0; i < b.used; i++ {
		if !b.win[i].success {
			fail++
		}
		if b.win[i].slow {
			slowN++
		}
	}
	failRate := float64(fail) / float64(b.used)
	slowRate := float64(slowN) / float64(b.used)
	if (b.cfg.FailureRate > 0 && failRate >= b.cfg.FailureRate) ||
		(b.cfg.SlowCallRate > 0 && slowRate >= b.cfg.SlowCallRate) {
		b.setStateLocked(Open)
	}
}

// admit decides whether a call may run, moving Open to HalfOpen once the
// open period has passed.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st == Open {
		if b.now().Before(b.nextProbe) {
			return false, ErrOpen
		}
		b.setStateLocked(HalfOpen)
	}
	if b.st == HalfOpen {
		if b.probes >= b.cfg.HalfOpenMaxInFlight {
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// Do runs op under breaker. If open, runs fallback if provided, otherwise returns ErrOpen.
// op should return error only; any outputs can be captured via closure vars.
// A cancelled caller context is not counted against the dependency.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	probe, err := b.admit()
	if err != nil {
		b.metrics.IncBreakerCall(b.cfg.Name, "rejected")
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	opCtx := ctx
	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := b.now()
	err = op(opCtx)
	slow := b.cfg.SlowCallThreshold > 0 && b.now().Sub(start) > b.cfg.SlowCallThreshold

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probes--
	}
	if slow {
		b.metrics.IncBreakerCall(b.cfg.Name, "slow")
	}

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	if err != nil {
		b.consecFail++
		b.metrics.IncBreakerCall(b.cfg.Name, "failure")
		b.record(false, slow)
		if b.st == HalfOpen {
			// probe failed
			b.setStateLocked(Open)
		}
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	b.consecFail = 0
	b.metrics.IncBreakerCall(b.cfg.Name, "success")
	b.record(true, slow)
	if b.st == HalfOpen {
		b.setStateLocked(Closed)
	}
	return nil
}
