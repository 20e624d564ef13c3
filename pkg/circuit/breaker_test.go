package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renter-registry/pkg/metrics"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var errDown = errors.New("connection refused")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	b := New(Config{Name: "candidates", MaxConsecFailures: 3, OpenFor: 10 * time.Second},
		WithClock(clk.now), WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(ctx, fail, nil), errDown)
	}
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Do(ctx, ok, nil), ErrOpen)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BreakerCalls.WithLabelValues("candidates", "rejected")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BreakerState.WithLabelValues("candidates")))

	t.Run("failed probe reopens", func(t *testing.T) {
		clk.advance(11 * time.Second)
		assert.ErrorIs(t, b.Do(ctx, fail, nil), errDown)
		assert.Equal(t, Open, b.State())
	})

	t.Run("successful probe closes", func(t *testing.T) {
		clk.advance(11 * time.Second)
		require.NoError(t, b.Do(ctx, ok, nil))
		assert.Equal(t, Closed, b.State())
		assert.Equal(t, 0.0, promtest.ToFloat64(m.BreakerState.WithLabelValues("candidates")))
	})
}

func TestFailureRateNeedsMinSamples(t *testing.T) {
	b := New(Config{Name: "rate", WindowSize: 4, MinSamples: 4, FailureRate: 0.5})
	ctx := context.Background()

	require.NoError(t, b.Do(ctx, ok, nil))
	_ = b.Do(ctx, fail, nil)
	require.NoError(t, b.Do(ctx, ok, nil))
	assert.Equal(t, Closed, b.State())
	_ = b.Do(ctx, fail, nil)
	assert.Equal(t, Open, b.State())
}

func TestFallbackReceivesCause(t *testing.T) {
	b := New(Config{Name: "fb", MaxConsecFailures: 1, OpenFor: time.Minute})
	var causes []error
	fallback := func(_ context.Context, cause error) error {
		causes = append(causes, cause)
		return nil
	}
	require.NoError(t, b.Do(context.Background(), fail, fallback))
	require.NoError(t, b.Do(context.Background(), ok, fallback))
	assert.Equal(t, []error{errDown, ErrOpen}, causes)
}

func TestCancelledCallerIsNotCounted(t *testing.T) {
	b := New(Config{Name: "cancel", MaxConsecFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}

func TestOperationTimeout(t *testing.T) {
	b := New(Config{Name: "slow", OperationTimeout: 10 * time.Millisecond, MaxConsecFailures: 1})
	err := b.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Open, b.State())
}
