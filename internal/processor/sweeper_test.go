package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	"renter-registry/internal/normalize"
	"renter-registry/internal/store"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/metrics"
)

var now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func testConfig() SweepConfig {
	return SweepConfig{Workers: 2, RPS: 1000, Burst: 100, BatchSize: 2, RetryDelay: time.Millisecond, MaxRetries: 2}
}

func seed(t *testing.T, mem *store.Memory, fp, name, phone string, at time.Time) string {
	t.Helper()
	norm := normalize.NewDefault()
	p := identity.Profile{
		Fingerprint: fp,
		Name:        name,
		NameBucket:  norm.NameBucket(name),
		CreatedAt:   at,
	}
	if phone != "" {
		p.Identifiers = []identity.Identifier{{Kind: identity.KindPhone, Raw: phone, Normalized: phone}}
	}
	id, err := mem.CreateProfile(context.Background(), p)
	require.NoError(t, err)
	return id
}

func TestSweepFindsDuplicatePairOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(0)
	svc, err := matching.NewService(mem, matching.DefaultPolicy(), matching.WithHints(mem))
	require.NoError(t, err)
	es := events.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())

	a := seed(t, mem, "fa", "juan dela cruz", "+639171234567", now.Add(-3*time.Hour))
	b := seed(t, mem, "fb", "juan dela cruz", "+639171234567", now.Add(-2*time.Hour))
	seed(t, mem, "fc", "maria santos", "+639998887777", now.Add(-time.Hour))
	seed(t, mem, "old", "juan dela cruz", "+639171234567", now.Add(-48*time.Hour))

	s := NewSweeper(svc, mem, mem, testConfig(),
		WithSweepClock(func() time.Time { return now }),
		WithSweepEvents(es),
		WithSweepMetrics(m))
	s.Start(false)
	defer s.Stop(time.Second)

	queued, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	pairs, err := mem.DuplicateSuspects(ctx, 0)
	require.NoError(t, err)

	// The profile older than the lookback is never swept itself, but A and B
	// still find it through search.
	var found bool
	for _, p := range pairs {
		if p == identity.NewDuplicateSuspect(a, b, p.Score, p.Confidence, p.DetectedAt) {
			found = true
			assert.Equal(t, identity.ConfidenceExact, p.Confidence)
		}
		assert.NotEqual(t, p.RenterA, p.RenterB)
	}
	assert.True(t, found, "pair (a,b) not recorded: %+v", pairs)

	stats := s.GetStats()
	assert.Equal(t, int64(3), stats.ProfilesChecked)
	assert.Equal(t, int64(0), stats.FailedJobs)
	assert.Equal(t, now.Add(-time.Hour), stats.Watermark)
	assert.Equal(t, float64(3), promtest.ToFloat64(m.SweepProfiles))

	history, err := es.ListByRenter(ctx, a)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, events.TypeDuplicateSuspected, history[0].Type)

	t.Run("watermark advances", func(t *testing.T) {
		queued, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, queued)

		seed(t, mem, "fd", "pedro penduko", "+639175550000", now.Add(-time.Minute))
		queued, err = s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, queued)
	})
}

type stubSearcher struct {
	mu    sync.Mutex
	calls int
	errs  []error // returned in order; nil once exhausted
	out   []identity.MatchResult
}

func (s *stubSearcher) Search(ctx context.Context, in identity.SearchInput) ([]identity.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return s.out, nil
}

func TestSweepSkipsSelfAndWeakResults(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(0)
	a := seed(t, mem, "fa", "juan dela cruz", "+639171234567", now.Add(-time.Hour))
	strong := []identity.MatchSignal{{Type: identity.SignalPhoneExact, Strength: 1}}
	searcher := &stubSearcher{out: []identity.MatchResult{
		{RenterID: a, Score: 100, Confidence: identity.ConfidenceExact, Signals: strong},
		{RenterID: "weak", Score: 60, Confidence: identity.ConfidenceMedium, Signals: strong},
		{RenterID: "name-only", Score: 85, Confidence: identity.ConfidenceHigh,
			Signals: []identity.MatchSignal{{Type: identity.SignalNameFuzzy, Strength: 1}}},
		{RenterID: "dup", Score: 85, Confidence: identity.ConfidenceHigh, Signals: strong},
	}}

	s := NewSweeper(searcher, mem, mem, testConfig(), WithSweepClock(func() time.Time { return now }))
	s.Start(false)
	defer s.Stop(time.Second)

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	pairs, err := mem.DuplicateSuspects(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, identity.NewDuplicateSuspect(a, "dup", 85, identity.ConfidenceHigh, now), pairs[0])
}

func TestSweepRetriesStorageErrors(t *testing.T) {
	mem := store.NewMemory(0)
	seed(t, mem, "fa", "juan dela cruz", "+639171234567", now.Add(-time.Hour))
	searcher := &stubSearcher{errs: []error{errs.NewDB("store.FindByIdentifier", "query renters", errors.New("bad connection"))}}

	s := NewSweeper(searcher, mem, mem, testConfig(), WithSweepClock(func() time.Time { return now }))
	s.Start(false)
	defer s.Stop(time.Second)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.calls)
	assert.Equal(t, int64(0), s.GetStats().FailedJobs)
}

func TestSweepCountsFailures(t *testing.T) {
	mem := store.NewMemory(0)
	seed(t, mem, "fa", "juan dela cruz", "+639171234567", now.Add(-time.Hour))
	searcher := &stubSearcher{errs: []error{errors.New("invalid input")}}
	m := metrics.New(prometheus.NewRegistry())

	s := NewSweeper(searcher, mem, mem, testConfig(), WithSweepClock(func() time.Time { return now }), WithSweepMetrics(m))
	s.Start(false)
	defer s.Stop(time.Second)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, int64(1), s.GetStats().FailedJobs)
	assert.Equal(t, float64(1), promtest.ToFloat64(m.SweepErrors))
}

func TestSweepPeriodic(t *testing.T) {
	mem := store.NewMemory(0)
	svc, err := matching.NewService(mem, matching.DefaultPolicy())
	require.NoError(t, err)
	seed(t, mem, "fa", "juan dela cruz", "+639171234567", now.Add(-time.Hour))
	seed(t, mem, "fb", "juan cruz", "+639171234567", now.Add(-time.Minute))

	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	s := NewSweeper(svc, mem, mem, cfg, WithSweepClock(func() time.Time { return now }))
	s.Start(true)
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		pairs, _ := mem.DuplicateSuspects(context.Background(), 0)
		return len(pairs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.GetStats().Runs >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSweepStop(t *testing.T) {
	mem := store.NewMemory(0)
	s := NewSweeper(&stubSearcher{}, mem, mem, testConfig())
	s.Start(false)
	require.NoError(t, s.Stop(time.Second))
	require.NoError(t, s.Stop(time.Second))

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSweepConfigDefaults(t *testing.T) {
	cfg := SweepConfig{MaxRetries: -1}.withDefaults()
	d := DefaultSweepConfig()
	assert.Equal(t, d.Workers, cfg.Workers)
	assert.Equal(t, d.QueueSize, cfg.QueueSize)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestSweepApplyRate(t *testing.T) {
	mem := store.NewMemory(0)
	s := NewSweeper(&stubSearcher{}, mem, mem, testConfig())
	s.ApplyRate(5, 0)
	assert.Equal(t, 5.0, float64(s.limiter.Limit()))
	assert.Equal(t, 100, s.limiter.Burst())
	s.ApplyRate(0, 3)
	assert.Equal(t, 5.0, float64(s.limiter.Limit()))
	assert.Equal(t, 3, s.limiter.Burst())
}
