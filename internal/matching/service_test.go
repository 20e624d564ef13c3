package matching_test

import (
	"context"
	"errors"
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
	testutil "renter-registry/internal/testing"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/metrics"
)

var juan = identity.CandidateData{RenterID: "A", Name: "juan dela cruz", Phones: []string{"+639171234567"}}

func bucket(name string) string { return normalize.NewDefault().NameBucket(name) }

func newService(t *testing.T, p matching.CandidateProvider, opts ...matching.Option) *matching.Service {
	t.Helper()
	s, err := matching.NewService(p, matching.DefaultPolicy(), opts...)
	require.NoError(t, err)
	return s
}

func TestSearchPhoneOnly(t *testing.T) {
	p := testutil.NewMockProvider()
	p.Add(identity.KindPhone, "+639171234567", juan)
	s := newService(t, p)

	results, err := s.Search(context.Background(), identity.SearchInput{Phone: "0917 123 4567"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].RenterID)
	assert.True(t, results[0].Confidence.AtLeast(identity.ConfidenceHigh))
	assert.Equal(t, 1, p.CallCount(string(identity.KindPhone)))
	assert.Equal(t, 0, p.CallCount("name_bucket"))
}

func TestSearchEmptyInput(t *testing.T) {
	p := testutil.NewMockProvider()
	results, err := newService(t, p).Search(context.Background(), identity.SearchInput{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, p.Calls)
}

func TestSearchLookupFailures(t *testing.T) {
	boom := errors.New("connection refused")
	in := identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567"}

	t.Run("partial failure still ranks", func(t *testing.T) {
		p := testutil.NewMockProvider()
		p.Err[string(identity.KindPhone)] = boom
		p.ByBucket[bucket("Juan Dela Cruz")] = []identity.CandidateData{juan}

		results, err := newService(t, p).Search(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "A", results[0].RenterID)
	})

	t.Run("every lookup failed", func(t *testing.T) {
		p := testutil.NewMockProvider()
		p.Err[string(identity.KindPhone)] = boom
		p.Err["name_bucket"] = boom

		_, err := newService(t, p).Search(context.Background(), in)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

type blockingProvider struct{}

func (blockingProvider) FindByIdentifier(ctx context.Context, _ identity.IdentifierKind, _ string, _ int) ([]identity.CandidateData, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) FindByNameBucket(ctx context.Context, _ string, _ int) ([]identity.CandidateData, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearchLookupTimeout(t *testing.T) {
	policy := matching.DefaultPolicy()
	policy.Matching.LookupTimeout = 20 * time.Millisecond
	s, err := matching.NewService(blockingProvider{}, policy)
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Search(context.Background(), identity.SearchInput{Phone: "09171234567"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearchCandidateLimit(t *testing.T) {
	p := testutil.NewMockProvider()
	policy := matching.DefaultPolicy()
	policy.Matching.CandidateLimit = 7
	s, err := matching.NewService(p, policy)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), identity.SearchInput{Name: "Juan Dela Cruz", Email: "juan@example.com"})
	require.NoError(t, err)
	require.Len(t, p.Limits, 2)
	for _, l := range p.Limits {
		assert.Equal(t, 7, l)
	}
}

func TestSearchCountsNormalizationFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := testutil.NewMockProvider()
	p.ByBucket[bucket("Juan Dela Cruz")] = []identity.CandidateData{juan}
	s := newService(t, p, matching.WithMetrics(m))

	results, err := s.Search(context.Background(), identity.SearchInput{Name: "Juan Dela Cruz", Phone: "call me"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, p.CallCount(string(identity.KindPhone)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.NormalizationFailures.WithLabelValues("PHONE")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.SearchResults.WithLabelValues(string(results[0].Confidence))))
}

func TestSearchGenericNameHint(t *testing.T) {
	p := testutil.NewMockProvider()
	p.ByBucket[bucket("Juan Dela Cruz")] = []identity.CandidateData{{RenterID: "A", Name: "juan dela cruz"}}
	in := identity.SearchInput{Name: "Juan Dela Cruz"}

	tests := []struct {
		name  string
		hints *testutil.MockHints
		want  identity.Confidence
	}{
		{"no hint source", nil, identity.ConfidenceMedium},
		{"specific name", &testutil.MockHints{Generic: map[string]bool{}}, identity.ConfidenceMedium},
		{"generic name", &testutil.MockHints{Generic: map[string]bool{"juan dela cruz": true}}, identity.ConfidenceLow},
		{"hint source down", &testutil.MockHints{Err: errors.New("timeout")}, identity.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []matching.Option
			if tt.hints != nil {
				opts = append(opts, matching.WithHints(tt.hints))
			}
			results, err := newService(t, p, opts...).Search(context.Background(), in)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Confidence)
		})
	}
}

func TestApplyConfig(t *testing.T) {
	s := newService(t, testutil.NewMockProvider())

	bad := matching.DefaultPolicy()
	bad.Normalize.DefaultCountryCode = "abc"
	err := s.ApplyConfig(bad)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrValidation))
	assert.Equal(t, "63", s.Policy().Normalize.DefaultCountryCode)

	good := matching.DefaultPolicy()
	good.Normalize.DefaultCountryCode = "1"
	good.Matching.MaxResults = 3
	require.NoError(t, s.ApplyConfig(good))
	assert.Equal(t, "1", s.Policy().Normalize.DefaultCountryCode)
	assert.Equal(t, 3, s.Policy().Matching.MaxResults)
}

func TestNewServiceRejects(t *testing.T) {
	_, err := matching.NewService(nil, matching.DefaultPolicy())
	assert.True(t, errs.Is(err, errs.ErrValidation))

	bad := matching.DefaultPolicy()
	bad.Matching.CandidateLimit = 0
	_, err = matching.NewService(testutil.NewMockProvider(), bad)
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestResolveIntake(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(0)
	es := events.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newService(t, mem,
		matching.WithHints(mem),
		matching.WithProfileStore(mem),
		matching.WithEventStore(es),
		matching.WithMetrics(m),
		matching.WithClock(func() time.Time { return now }),
	)

	first, err := s.ResolveIntake(ctx, identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, matching.OutcomeCreated, first.Outcome)
	assert.NotEmpty(t, first.Fingerprint)

	stored, err := mem.Profile(ctx, first.RenterID)
	require.NoError(t, err)
	assert.Equal(t, "juan dela cruz", stored.Name)
	assert.Equal(t, bucket("Juan Dela Cruz"), stored.NameBucket)
	assert.Equal(t, now, stored.CreatedAt)

	t.Run("same phone matches", func(t *testing.T) {
		res, err := s.ResolveIntake(ctx, identity.SearchInput{Phone: "+63 917 123 4567"})
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, matching.OutcomeMatched, res.Outcome)
		assert.Equal(t, first.RenterID, res.RenterID)
		require.NotNil(t, res.Match)
		assert.True(t, res.Match.HasSignal(identity.SignalPhoneExact))
	})

	t.Run("same name different phone creates", func(t *testing.T) {
		res, err := s.ResolveIntake(ctx, identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09998887777"})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.NotEqual(t, first.RenterID, res.RenterID)
	})

	history, err := es.ListByRenter(ctx, first.RenterID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, events.TypeProfileCreated, history[0].Type)
	assert.Equal(t, events.TypeIntakeMatched, history[1].Type)

	h := events.Replay(history)
	assert.Equal(t, 2, h.Intakes)
	assert.Equal(t, now, h.CreatedAt)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.IntakeOutcomes.WithLabelValues(matching.OutcomeCreated)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.IntakeOutcomes.WithLabelValues(matching.OutcomeMatched)))
}

// racingStore loses every create to a concurrent writer.
type racingStore struct{ winner string }

func (r racingStore) CreateProfile(context.Context, identity.Profile) (string, error) {
	return "", errs.NewDB("store.CreateProfile", "fingerprint taken", errs.ErrAlreadyExists)
}

func (r racingStore) FindByFingerprint(context.Context, string) (string, error) {
	return r.winner, nil
}

func TestResolveIntakeLosesCreateRace(t *testing.T) {
	s := newService(t, testutil.NewMockProvider(), matching.WithProfileStore(racingStore{winner: "W"}))
	res, err := s.ResolveIntake(context.Background(), identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "W", res.RenterID)
	assert.Equal(t, matching.OutcomeExisting, res.Outcome)
	assert.NotEmpty(t, res.Fingerprint)
}

func TestResolveIntakeErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newService(t, testutil.NewMockProvider()).ResolveIntake(ctx, identity.SearchInput{Phone: "09171234567"})
	assert.True(t, errs.Is(err, errs.ErrValidation))

	mem := store.NewMemory(0)
	_, err = newService(t, mem, matching.WithProfileStore(mem)).ResolveIntake(ctx, identity.SearchInput{Phone: "nope"})
	assert.True(t, errs.Is(err, errs.ErrNormalization))
}
