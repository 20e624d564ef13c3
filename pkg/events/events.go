package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is the base interface for renter audit events.
// Keep payloads small and never include raw identifiers.
type Event interface {
	Type() string
	RenterID() string
	Timestamp() time.Time
	MarshalData() ([]byte, error)
}

// Base contains common event metadata.
type Base struct {
	Ts  time.Time `json:"ts"`
	RID string    `json:"renter_id"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) RenterID() string     { return b.RID }

const (
	TypeProfileCreated     = "renter.profile.created"
	TypeIntakeMatched      = "renter.intake.matched"
	TypeDuplicateSuspected = "renter.duplicate.suspected"
)

// ProfileCreated is emitted when intake could not match and created a profile.
type ProfileCreated struct {
	Base
	Fingerprint string   `json:"fingerprint"`
	Kinds       []string `json:"kinds,omitempty"`
	HasName     bool     `json:"has_name"`
}

func (e ProfileCreated) Type() string                 { return TypeProfileCreated }
func (e ProfileCreated) MarshalData() ([]byte, error) { return json.Marshal(e) }

// IntakeMatched is emitted when a report resolved to an existing profile.
type IntakeMatched struct {
	Base
	Score      int      `json:"score"`
	Confidence string   `json:"confidence"`
	Signals    []string `json:"signals,omitempty"`
}

func (e IntakeMatched) Type() string                 { return TypeIntakeMatched }
func (e IntakeMatched) MarshalData() ([]byte, error) { return json.Marshal(e) }

// DuplicateSuspected is appended to both renters of a suspect pair.
type DuplicateSuspected struct {
	Base
	OtherRenterID string `json:"other_renter_id"`
	Score         int    `json:"score"`
	Confidence    string `json:"confidence"`
}

func (e DuplicateSuspected) Type() string                 { return TypeDuplicateSuspected }
func (e DuplicateSuspected) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EventStore defines persistence and replay.
// Implementations must guarantee ordering per renter.
type EventStore interface {
	Append(ctx context.Context, ev ...Event) error
	ListByRenter(ctx context.Context, renterID string) ([]StoredEvent, error)
}

// StoredEvent is a durable representation.
// Seq is a monotonic order within the store.
type StoredEvent struct {
	Seq      int64     `json:"seq"`
	RenterID string    `json:"renter_id"`
	Type     string    `json:"type"`
	Ts       time.Time `json:"ts"`
	Payload  []byte    `json:"payload"`
}

// RenterHistory is the result of replay for a renter.
type RenterHistory struct {
	RenterID    string    `json:"renter_id"`
	CreatedAt   time.Time `json:"created_at"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Intakes     int       `json:"intakes"`
	LastSeen    time.Time `json:"last_seen"`
	BestScore   int       `json:"best_score"`
	Suspects    []string  `json:"suspects,omitempty"`
}

// Replay applies events in order and rebuilds the renter's history.
// Undecodable payloads are skipped.
func Replay(events []StoredEvent) *RenterHistory {
	h := &RenterHistory{}
	seen := map[string]bool{}
	for _, se := range events {
		h.RenterID = se.RenterID
		h.LastSeen = se.Ts
		switch se.Type {
		case TypeProfileCreated:
			var ev ProfileCreated
			if json.Unmarshal(se.Payload, &ev) != nil {
				continue
			}
			h.CreatedAt = se.Ts
			h.Fingerprint = ev.Fingerprint
			h.Intakes++
		case TypeIntakeMatched:
			var ev IntakeMatched
			if json.Unmarshal(se.Payload, &ev) != nil {
				continue
			}
			h.Intakes++
			if ev.Score > h.BestScore {
				h.BestScore = ev.Score
			}
		case TypeDuplicateSuspected:
			var ev DuplicateSuspected
			if json.Unmarshal(se.Payload, &ev) != nil {
				continue
			}
			if !seen[ev.OtherRenterID] {
				seen[ev.OtherRenterID] = true
				h.Suspects = append(h.Suspects, ev.OtherRenterID)
			}
		}
	}
	return h
}

// MemoryStore keeps events in process. Used in tests and with the memory
// registry.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int64
	events map[string][]StoredEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]StoredEvent)}
}

func (m *MemoryStore) Append(_ context.Context, ev ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range ev {
		payload, err := e.MarshalData()
		if err != nil {
			return err
		}
		ts := e.Timestamp()
		if ts.IsZero() {
			ts = time.Now()
		}
		m.seq++
		m.events[e.RenterID()] = append(m.events[e.RenterID()], StoredEvent{
			Seq: m.seq, RenterID: e.RenterID(), Type: e.Type(), Ts: ts, Payload: payload,
		})
	}
	return nil
}

func (m *MemoryStore) ListByRenter(_ context.Context, renterID string) ([]StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredEvent(nil), m.events[renterID]...), nil
}
