package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"renter-registry/internal/constants"
	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	"renter-registry/pkg/database"
	errs "renter-registry/pkg/errors"
)

var (
	_ matching.CandidateProvider = (*MySQL)(nil)
	_ matching.GenericNameHints  = (*MySQL)(nil)
	_ matching.ProfileStore      = (*MySQL)(nil)
	_ matching.ProfileLister     = (*MySQL)(nil)
	_ matching.SuspectRecorder   = (*MySQL)(nil)
)

// MySQL is a thin adapter over pkg/database.DB for the tables created by
// database.EnsureSchema.
type MySQL struct {
	db         *database.DB
	genericMin int
}

func NewMySQL(db *database.DB, genericNameMinCount int) *MySQL {
	if genericNameMinCount <= 0 {
		genericNameMinCount = constants.GenericNameMinCountDefault
	}
	return &MySQL{db: db, genericMin: genericNameMinCount}
}

// CreateProfile inserts the profile and its identifiers in one transaction.
// A taken fingerprint wraps errors.ErrAlreadyExists.
func (s *MySQL) CreateProfile(ctx context.Context, p identity.Profile) (string, error) {
	if p.RenterID == "" {
		p.RenterID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO renter_profiles (renter_id, fingerprint, name_normalized, name_bucket, location_normalized, created_at)
			 VALUES (?,?,?,?,?,?)`,
			p.RenterID, p.Fingerprint, p.Name, p.NameBucket, p.Location, p.CreatedAt)
		if err != nil {
			if database.IsDuplicateKey(err) {
				return errs.NewDB("store.CreateProfile", "fingerprint taken", errs.ErrAlreadyExists)
			}
			return errs.NewDB("store.CreateProfile", "insert profile", err)
		}
		for _, id := range p.Identifiers {
			if _, err := tx.ExecContext(ctx,
				`INSERT IGNORE INTO renter_identifiers (renter_id, kind, value_normalized) VALUES (?,?,?)`,
				p.RenterID, string(id.Kind), id.Normalized); err != nil {
				return errs.NewDB("store.CreateProfile", "insert identifier", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return p.RenterID, nil
}

func (s *MySQL) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "profile_by_fingerprint",
		`SELECT renter_id FROM renter_profiles WHERE fingerprint = ?`)
	if err != nil {
		return "", err
	}
	var id string
	if err := stmt.QueryRowContext(ctx, fingerprint).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.NewDB("store.FindByFingerprint", "no profile", errs.ErrNotFound)
		}
		return "", errs.NewDB("store.FindByFingerprint", "query profile", err)
	}
	return id, nil
}

func (s *MySQL) FindByIdentifier(ctx context.Context, kind identity.IdentifierKind, normalized string, limit int) ([]identity.CandidateData, error) {
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "renters_by_identifier",
		`SELECT DISTINCT i.renter_id FROM renter_identifiers i
		 JOIN renter_profiles p ON p.renter_id = i.renter_id
		 WHERE i.kind = ? AND i.value_normalized = ?
		 ORDER BY p.created_at DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	ids, err := queryIDs(ctx, stmt, string(kind), normalized, boundLimit(limit))
	if err != nil {
		return nil, errs.NewDB("store.FindByIdentifier", "query renters", err)
	}
	return s.loadCandidates(ctx, ids)
}

func (s *MySQL) FindByNameBucket(ctx context.Context, bucket string, limit int) ([]identity.CandidateData, error) {
	if bucket == "" {
		return nil, nil
	}
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "renters_by_name_bucket",
		`SELECT renter_id FROM renter_profiles WHERE name_bucket = ? ORDER BY created_at DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	ids, err := queryIDs(ctx, stmt, bucket, boundLimit(limit))
	if err != nil {
		return nil, errs.NewDB("store.FindByNameBucket", "query renters", err)
	}
	return s.loadCandidates(ctx, ids)
}

// loadCandidates fetches profiles and identifiers for ids, keeping the
// order of ids.
func (s *MySQL) loadCandidates(ctx context.Context, ids []string) ([]identity.CandidateData, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	profiles, err := s.loadProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]identity.CandidateData, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			out = append(out, p.Candidate())
		}
	}
	return out, nil
}

func (s *MySQL) loadProfiles(ctx context.Context, ids []string) (map[string]*identity.Profile, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(len(ids))

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT renter_id, fingerprint, name_normalized, name_bucket, location_normalized, created_at
		 FROM renter_profiles WHERE renter_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, errs.NewDB("store.loadProfiles", "query profiles", err)
	}
	profiles := make(map[string]*identity.Profile, len(ids))
	for rows.Next() {
		var p identity.Profile
		if err := rows.Scan(&p.RenterID, &p.Fingerprint, &p.Name, &p.NameBucket, &p.Location, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, errs.NewDB("store.loadProfiles", "scan profile", err)
		}
		profiles[p.RenterID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("store.loadProfiles", "row iteration error", err)
	}

	rows, err = s.db.Conn().QueryContext(ctx,
		`SELECT renter_id, kind, value_normalized FROM renter_identifiers
		 WHERE renter_id IN (`+in+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, errs.NewDB("store.loadProfiles", "query identifiers", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rid, kind, value string
		if err := rows.Scan(&rid, &kind, &value); err != nil {
			return nil, errs.NewDB("store.loadProfiles", "scan identifier", err)
		}
		if p, ok := profiles[rid]; ok {
			p.Identifiers = append(p.Identifiers, identity.Identifier{
				Kind: identity.IdentifierKind(kind), Raw: value, Normalized: value,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("store.loadProfiles", "row iteration error", err)
	}
	return profiles, nil
}

// IsGenericName treats single-token and very short names as generic, and
// any name shared by at least the configured number of profiles.
func (s *MySQL) IsGenericName(ctx context.Context, normalizedName string) (bool, error) {
	if tooShortToIdentify(normalizedName) {
		return true, nil
	}
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "name_frequency",
		`SELECT COUNT(*) FROM (SELECT 1 FROM renter_profiles WHERE name_normalized = ? LIMIT ?) t`)
	if err != nil {
		return false, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, normalizedName, s.genericMin).Scan(&n); err != nil {
		return false, errs.NewDB("store.IsGenericName", "count name", err)
	}
	return n >= s.genericMin, nil
}

// ListProfilesSince returns profiles created strictly after since, oldest
// first.
func (s *MySQL) ListProfilesSince(ctx context.Context, since time.Time, limit int) ([]identity.Profile, error) {
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "profiles_since",
		`SELECT renter_id FROM renter_profiles WHERE created_at > ? ORDER BY created_at ASC, renter_id ASC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	ids, err := queryIDs(ctx, stmt, since.UTC(), boundLimit(limit))
	if err != nil {
		return nil, errs.NewDB("store.ListProfilesSince", "query renters", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	profiles, err := s.loadProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]identity.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// RecordDuplicateSuspect upserts the ordered pair, keeping the latest score.
func (s *MySQL) RecordDuplicateSuspect(ctx context.Context, sus identity.DuplicateSuspect) error {
	if sus.RenterA == "" || sus.RenterB == "" || sus.RenterA == sus.RenterB {
		return errs.NewValidation("store.RecordDuplicateSuspect", "suspect pair needs two distinct renters", nil)
	}
	sus = identity.NewDuplicateSuspect(sus.RenterA, sus.RenterB, sus.Score, sus.Confidence, sus.DetectedAt)
	if sus.DetectedAt.IsZero() {
		sus.DetectedAt = time.Now().UTC()
	}
	ctx, cancel := s.db.WithWriteTimeout(ctx)
	defer cancel()
	stmt, err := s.db.Stmt(ctx, "upsert_suspect",
		`INSERT INTO renter_duplicate_suspects (renter_a, renter_b, score, confidence, detected_at)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE score = VALUES(score), confidence = VALUES(confidence), detected_at = VALUES(detected_at)`)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, sus.RenterA, sus.RenterB, sus.Score, string(sus.Confidence), sus.DetectedAt); err != nil {
		return errs.NewDB("store.RecordDuplicateSuspect", "upsert suspect", err)
	}
	return nil
}

// DuplicateSuspects lists recorded pairs ordered by score, highest first.
func (s *MySQL) DuplicateSuspects(ctx context.Context, limit int) ([]identity.DuplicateSuspect, error) {
	ctx, cancel := s.db.WithReadTimeout(ctx)
	defer cancel()
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT renter_a, renter_b, score, confidence, detected_at FROM renter_duplicate_suspects
		 ORDER BY score DESC, renter_a ASC, renter_b ASC LIMIT ?`, boundLimit(limit))
	if err != nil {
		return nil, errs.NewDB("store.DuplicateSuspects", "query suspects", err)
	}
	defer rows.Close()
	var out []identity.DuplicateSuspect
	for rows.Next() {
		var sus identity.DuplicateSuspect
		var conf string
		if err := rows.Scan(&sus.RenterA, &sus.RenterB, &sus.Score, &conf, &sus.DetectedAt); err != nil {
			return nil, errs.NewDB("store.DuplicateSuspects", "scan suspect", err)
		}
		sus.Confidence = identity.Confidence(conf)
		out = append(out, sus)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("store.DuplicateSuspects", "row iteration error", err)
	}
	return out, nil
}

// Ping checks the underlying connection.
func (s *MySQL) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func queryIDs(ctx context.Context, stmt *sql.Stmt, args ...any) ([]string, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boundLimit(limit int) int {
	if limit <= 0 || limit > constants.MaxCandidateLimit {
		return constants.MaxCandidateLimit
	}
	return limit
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
