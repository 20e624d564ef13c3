// Package processor runs the background duplicate sweep: recently created
// profiles are searched against the registry and strong hits are stored as
// suspected duplicate pairs.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"renter-registry/internal/constants"
	"renter-registry/internal/domain/specs"
	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/logging"
	"renter-registry/pkg/metrics"
)

// ErrStopped is returned by RunOnce after Stop.
var ErrStopped = errors.New("sweeper stopped")

// Searcher is the part of matching.Service the sweep needs.
type Searcher interface {
	Search(ctx context.Context, in identity.SearchInput) ([]identity.MatchResult, error)
}

// SweepJob is one profile to re-check.
type SweepJob struct {
	Profile identity.Profile
	done    func()
}

// SweepResult is the outcome of checking one profile.
type SweepResult struct {
	RenterID         string
	Suspects         []identity.DuplicateSuspect
	Error            error
	ProcessingTimeMs int64
	Retries          int
}

// SweepStats tracks sweep statistics.
type SweepStats struct {
	Runs            int64
	ProfilesQueued  int64
	ProfilesChecked int64
	SuspectsFound   int64
	FailedJobs      int64
	AverageTimeMs   int64
	StartTime       time.Time
	LastRun         time.Time
	Watermark       time.Time
	WorkerCount     int
	QueueSize       int64
}

// SweepConfig holds configuration for the sweeper.
type SweepConfig struct {
	Interval   time.Duration
	Workers    int
	RPS        float64 // searches per second across all workers
	Burst      int
	BatchSize  int
	Lookback   time.Duration // how far back the first run looks
	JobTimeout time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultSweepConfig returns a conservative configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:   5 * time.Minute,
		Workers:    4,
		RPS:        20,
		Burst:      10,
		BatchSize:  500,
		Lookback:   24 * time.Hour,
		JobTimeout: constants.SweepJobTimeoutDefault,
		QueueSize:  constants.SweepQueueSizeDefault,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

// Sweeper re-checks new profiles with a rate-limited worker pool.
type Sweeper struct {
	searcher Searcher
	profiles matching.ProfileLister
	suspects matching.SuspectRecorder
	events   events.EventStore

	cfg     SweepConfig
	limiter *rate.Limiter
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	now     func() time.Time

	jobQueue chan SweepJob
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// runMu serializes RunOnce and guards watermark and stopped.
	runMu     sync.Mutex
	watermark time.Time
	stopped   bool

	stats   SweepStats
	statsMu sync.RWMutex
	queued  atomic.Int64

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// SweepOption configures a Sweeper.
type SweepOption func(*Sweeper)

func WithSweepLogger(l *logging.Logger) SweepOption {
	return func(s *Sweeper) { s.logger = l.WithComponent("sweeper") }
}

func WithSweepMetrics(m *metrics.Metrics) SweepOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweepEvents emits a DuplicateSuspected event for both renters of each pair.
func WithSweepEvents(es events.EventStore) SweepOption {
	return func(s *Sweeper) { s.events = es }
}

func WithSweepClock(now func() time.Time) SweepOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper. Zero config fields take their defaults.
func NewSweeper(searcher Searcher, profiles matching.ProfileLister, suspects matching.SuspectRecorder, cfg SweepConfig, opts ...SweepOption) *Sweeper {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		searcher: searcher,
		profiles: profiles,
		suspects: suspects,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:   logging.Nop().WithComponent("sweeper"),
		now:      time.Now,
		jobQueue: make(chan SweepJob, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.watermark = s.now().UTC().Add(-cfg.Lookback)
	s.stats = SweepStats{StartTime: s.now(), Watermark: s.watermark, WorkerCount: cfg.Workers}
	return s
}

func (c SweepConfig) withDefaults() SweepConfig {
	d := DefaultSweepConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.RPS <= 0 {
		c.RPS = d.RPS
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	return c
}

// Start launches the workers and must precede RunOnce. With periodic set
// it also runs a sweep immediately and then every Interval.
func (s *Sweeper) Start(periodic bool) {
	s.startOnce.Do(func() {
		s.logger.Info("starting duplicate sweeper",
			logging.Int("workers", s.cfg.Workers),
			logging.Float64("rps", s.cfg.RPS),
			logging.Duration("interval", s.cfg.Interval))
		for i := 0; i < s.cfg.Workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
		if periodic {
			s.wg.Add(1)
			go s.loop()
		}
	})
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrStopped) && s.ctx.Err() == nil {
			s.logger.Error("sweep run failed", err)
		}
		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop cancels in-flight work and waits for the workers up to timeout.
func (s *Sweeper) Stop(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("stopping duplicate sweeper")
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("sweeper shutdown timeout exceeded")
		}

		s.runMu.Lock()
		s.stopped = true
		s.runMu.Unlock()
		s.drain()
		s.logger.Info("duplicate sweeper stopped")
	})
	return err
}

// drain releases jobs the workers never picked up.
func (s *Sweeper) drain() {
	for {
		select {
		case job := <-s.jobQueue:
			job.done()
		default:
			return
		}
	}
}

// RunOnce lists profiles created after the watermark, checks each one and
// waits for the batch to finish. It returns the number of profiles queued.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopped || s.ctx.Err() != nil {
		return 0, ErrStopped
	}
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	var pending sync.WaitGroup
	queued := 0
	var runErr error
	for {
		batch, err := s.profiles.ListProfilesSince(ctx, s.watermark, s.cfg.BatchSize)
		if err != nil {
			runErr = fmt.Errorf("list profiles: %w", err)
			break
		}
		for _, p := range batch {
			pending.Add(1)
			job := SweepJob{Profile: p, done: pending.Done}
			select {
			case s.jobQueue <- job:
				queued++
				s.queued.Add(1)
				s.metrics.SetSweepQueueDepth(len(s.jobQueue))
			case <-ctx.Done():
				pending.Done()
				runErr = ctx.Err()
			case <-s.ctx.Done():
				pending.Done()
				runErr = ErrStopped
			}
			if runErr != nil {
				break
			}
			s.watermark = p.CreatedAt
		}
		if runErr != nil || len(batch) < s.cfg.BatchSize {
			break
		}
	}

	finished := make(chan struct{})
	go func() {
		pending.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		if runErr == nil {
			runErr = ctx.Err()
		}
	case <-s.ctx.Done():
		if runErr == nil {
			runErr = ErrStopped
		}
	}

	s.statsMu.Lock()
	s.stats.Runs++
	s.stats.ProfilesQueued += int64(queued)
	s.stats.LastRun = s.now()
	s.stats.Watermark = s.watermark
	s.statsMu.Unlock()

	s.logger.Info("sweep run complete",
		logging.Int("queued", queued),
		logging.Duration("elapsed", time.Since(start)))
	return queued, runErr
}

// GetStats returns current sweep statistics.
func (s *Sweeper) GetStats() SweepStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	stats := s.stats
	stats.QueueSize = s.queued.Load()
	return stats
}

// ApplyRate changes the search rate limit of a running sweeper. Non-positive
// values keep the current setting.
func (s *Sweeper) ApplyRate(rps float64, burst int) {
	if rps > 0 {
		s.limiter.SetLimit(rate.Limit(rps))
	}
	if burst > 0 {
		s.limiter.SetBurst(burst)
	}
	s.logger.Info("sweep rate applied",
		logging.Float64("rps", float64(s.limiter.Limit())),
		logging.Int("burst", s.limiter.Burst()))
}

func (s *Sweeper) worker(id int) {
	defer s.wg.Done()
	s.logger.Debug("worker started", logging.Int("worker", id))
	defer s.logger.Debug("worker stopped", logging.Int("worker", id))

	for {
		select {
		case job := <-s.jobQueue:
			s.queued.Add(-1)
			s.metrics.SetSweepQueueDepth(len(s.jobQueue))
			s.handleResult(s.processJob(job))
			job.done()
		case <-s.ctx.Done():
			return
		}
	}
}

// processJob searches for the profile's own identity with retry on storage
// errors.
func (s *Sweeper) processJob(job SweepJob) SweepResult {
	start := time.Now()
	p := job.Profile
	result := SweepResult{RenterID: p.RenterID}

	jobCtx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()

	var err error
	var found []identity.MatchResult
retry:
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt*attempt) * s.cfg.RetryDelay
			select {
			case <-time.After(delay):
			case <-jobCtx.Done():
				err = fmt.Errorf("job cancelled during retry delay: %w", jobCtx.Err())
				break retry
			}
			result.Retries = attempt
		}
		if err = s.limiter.Wait(jobCtx); err != nil {
			err = fmt.Errorf("rate limit wait cancelled: %w", err)
			break
		}
		found, err = s.searcher.Search(jobCtx, p.SearchInput())
		if err == nil || !isRetryableError(jobCtx, err) {
			break
		}
		s.logger.Warn("retryable sweep error",
			logging.String("renter_id", p.RenterID),
			logging.Int("attempt", attempt+1),
			logging.String("error", err.Error()))
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err
		return result
	}

	at := s.now().UTC()
	strong := specs.DuplicateSuspect()
	for _, r := range found {
		if r.RenterID == p.RenterID || !strong.IsSatisfiedBy(r) {
			continue
		}
		result.Suspects = append(result.Suspects, identity.NewDuplicateSuspect(p.RenterID, r.RenterID, r.Score, r.Confidence, at))
	}
	return result
}

// isRetryableError retries storage failures while the job still has time.
func isRetryableError(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return errs.Is(err, errs.ErrDB)
}

func (s *Sweeper) handleResult(result SweepResult) {
	s.statsMu.Lock()
	s.stats.ProfilesChecked++
	if s.stats.ProfilesChecked == 1 {
		s.stats.AverageTimeMs = result.ProcessingTimeMs
	} else {
		s.stats.AverageTimeMs = (s.stats.AverageTimeMs + result.ProcessingTimeMs) / 2
	}
	s.statsMu.Unlock()
	s.metrics.IncSweepProfile()

	if result.Error != nil {
		s.statsMu.Lock()
		s.stats.FailedJobs++
		s.statsMu.Unlock()
		s.metrics.IncSweepError()
		s.logger.Error("sweep check failed", result.Error,
			logging.String("renter_id", result.RenterID),
			logging.Int("retries", result.Retries))
		return
	}

	for _, sus := range result.Suspects {
		if err := s.suspects.RecordDuplicateSuspect(s.ctx, sus); err != nil {
			s.metrics.IncSweepError()
			s.logger.Error("failed to record duplicate suspect", err,
				logging.String("renter_a", sus.RenterA),
				logging.String("renter_b", sus.RenterB))
			continue
		}
		s.statsMu.Lock()
		s.stats.SuspectsFound++
		s.statsMu.Unlock()
		s.metrics.IncSweepSuspect()
		s.logger.Info("duplicate suspected",
			logging.String("renter_a", sus.RenterA),
			logging.String("renter_b", sus.RenterB),
			logging.Int("score", sus.Score),
			logging.String("confidence", string(sus.Confidence)))
		s.emit(sus)
	}
}

func (s *Sweeper) emit(sus identity.DuplicateSuspect) {
	if s.events == nil {
		return
	}
	evs := []events.Event{
		events.DuplicateSuspected{Base: events.Base{Ts: sus.DetectedAt, RID: sus.RenterA}, OtherRenterID: sus.RenterB, Score: sus.Score, Confidence: string(sus.Confidence)},
		events.DuplicateSuspected{Base: events.Base{Ts: sus.DetectedAt, RID: sus.RenterB}, OtherRenterID: sus.RenterA, Score: sus.Score, Confidence: string(sus.Confidence)},
	}
	if err := s.events.Append(s.ctx, evs...); err != nil {
		s.logger.Error("failed to record suspect events", err,
			logging.String("renter_a", sus.RenterA),
			logging.String("renter_b", sus.RenterB))
	}
}
