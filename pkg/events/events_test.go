package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreReplay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx,
		ProfileCreated{Base: Base{Ts: t0, RID: "r1"}, Fingerprint: "abc", Kinds: []string{"PHONE"}, HasName: true},
		IntakeMatched{Base: Base{Ts: t0.Add(time.Hour), RID: "r1"}, Score: 85, Confidence: "HIGH"},
		IntakeMatched{Base: Base{Ts: t0.Add(2 * time.Hour), RID: "r1"}, Score: 100, Confidence: "EXACT"},
		DuplicateSuspected{Base: Base{Ts: t0.Add(3 * time.Hour), RID: "r1"}, OtherRenterID: "r2", Score: 85},
		DuplicateSuspected{Base: Base{Ts: t0.Add(4 * time.Hour), RID: "r1"}, OtherRenterID: "r2", Score: 90},
		ProfileCreated{Base: Base{Ts: t0, RID: "r2"}, Fingerprint: "def"},
	))

	stored, err := s.ListByRenter(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].Seq, stored[i-1].Seq)
	}

	h := Replay(stored)
	assert.Equal(t, "r1", h.RenterID)
	assert.Equal(t, t0, h.CreatedAt)
	assert.Equal(t, "abc", h.Fingerprint)
	assert.Equal(t, 3, h.Intakes)
	assert.Equal(t, 100, h.BestScore)
	assert.Equal(t, []string{"r2"}, h.Suspects)
	assert.Equal(t, t0.Add(4*time.Hour), h.LastSeen)
}

func TestReplaySkipsBadPayloads(t *testing.T) {
	h := Replay([]StoredEvent{
		{Seq: 1, RenterID: "r1", Type: TypeIntakeMatched, Payload: []byte("{")},
		{Seq: 2, RenterID: "r1", Type: "unknown", Payload: []byte("{}")},
	})
	assert.Equal(t, 0, h.Intakes)
	assert.Equal(t, "r1", h.RenterID)
}

func TestListUnknownRenter(t *testing.T) {
	out, err := NewMemoryStore().ListByRenter(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, out)
}
