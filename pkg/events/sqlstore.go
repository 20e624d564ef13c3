package events

import (
	"context"
	"encoding/json"
	"time"

	"renter-registry/internal/constants"
	"renter-registry/pkg/database"
	errs "renter-registry/pkg/errors"
)

// SQLEventStore stores events in the renter_events table created by
// database.EnsureSchema, ordered by auto-increment id.
type SQLEventStore struct {
	db *database.DB
}

func NewSQLEventStore(db *database.DB) *SQLEventStore {
	return &SQLEventStore{db: db}
}

func (s *SQLEventStore) Append(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, constants.EventsSQLTimeoutDefault)
	defer cancel()

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("events.Append", "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO renter_events (renter_id, type, at, data) VALUES (?,?,?,?)`)
	if err != nil {
		return errs.NewDB("events.Append", "prepare insert", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		b, err := e.MarshalData()
		if err != nil {
			return errs.NewDB("events.Append", "marshal payload", err)
		}
		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, e.RenterID(), e.Type(), at, string(b)); err != nil {
			return errs.NewDB("events.Append", "insert event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewDB("events.Append", "commit tx", err)
	}
	return nil
}

func (s *SQLEventStore) ListByRenter(ctx context.Context, renterID string) ([]StoredEvent, error) {
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, renter_id, type, at, data FROM renter_events WHERE renter_id = ? ORDER BY id ASC`, renterID)
	if err != nil {
		return nil, errs.NewDB("events.ListByRenter", "query events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var data string
		if err := rows.Scan(&se.Seq, &se.RenterID, &se.Type, &se.Ts, &data); err != nil {
			return nil, errs.NewDB("events.ListByRenter", "scan event", err)
		}
		se.Payload = json.RawMessage(data)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("events.ListByRenter", "row iteration error", err)
	}
	return out, nil
}

// Replay loads and replays a renter's events.
func (s *SQLEventStore) Replay(ctx context.Context, renterID string) (*RenterHistory, error) {
	events, err := s.ListByRenter(ctx, renterID)
	if err != nil {
		return nil, err
	}
	return Replay(events), nil
}
