// Package store implements the matching ports over MySQL and over process
// memory.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"renter-registry/internal/constants"
	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	errs "renter-registry/pkg/errors"
)

// Compile-time port checks.
var (
	_ matching.CandidateProvider = (*Memory)(nil)
	_ matching.GenericNameHints  = (*Memory)(nil)
	_ matching.ProfileStore      = (*Memory)(nil)
	_ matching.ProfileLister     = (*Memory)(nil)
	_ matching.SuspectRecorder   = (*Memory)(nil)
)

// Memory keeps profiles in maps guarded by a RWMutex. It backs
// STORE_DRIVER=memory and the service tests.
type Memory struct {
	mu            sync.RWMutex
	profiles      map[string]identity.Profile
	byFingerprint map[string]string
	suspects      map[[2]string]identity.DuplicateSuspect
	genericMin    int
}

func NewMemory(genericNameMinCount int) *Memory {
	if genericNameMinCount <= 0 {
		genericNameMinCount = constants.GenericNameMinCountDefault
	}
	return &Memory{
		profiles:      make(map[string]identity.Profile),
		byFingerprint: make(map[string]string),
		suspects:      make(map[[2]string]identity.DuplicateSuspect),
		genericMin:    genericNameMinCount,
	}
}

func (m *Memory) CreateProfile(ctx context.Context, p identity.Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byFingerprint[p.Fingerprint]; ok {
		return "", fmt.Errorf("store: fingerprint %s: %w", p.Fingerprint, errs.ErrAlreadyExists)
	}
	if p.RenterID == "" {
		p.RenterID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Identifiers = append([]identity.Identifier(nil), p.Identifiers...)
	m.profiles[p.RenterID] = p
	m.byFingerprint[p.Fingerprint] = p.RenterID
	return p.RenterID, nil
}

func (m *Memory) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byFingerprint[fingerprint]
	if !ok {
		return "", fmt.Errorf("store: fingerprint %s: %w", fingerprint, errs.ErrNotFound)
	}
	return id, nil
}

// Profile returns a stored profile by id.
func (m *Memory) Profile(ctx context.Context, renterID string) (identity.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[renterID]
	if !ok {
		return identity.Profile{}, fmt.Errorf("store: renter %s: %w", renterID, errs.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) FindByIdentifier(ctx context.Context, kind identity.IdentifierKind, normalized string, limit int) ([]identity.CandidateData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.collect(limit, func(p identity.Profile) bool {
		for _, id := range p.Identifiers {
			if id.Kind == kind && id.Normalized == normalized {
				return true
			}
		}
		return false
	}), nil
}

func (m *Memory) FindByNameBucket(ctx context.Context, bucket string, limit int) ([]identity.CandidateData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, nil
	}
	return m.collect(limit, func(p identity.Profile) bool { return p.NameBucket == bucket }), nil
}

// collect returns matching profiles newest first, like the SQL store.
func (m *Memory) collect(limit int, match func(identity.Profile) bool) []identity.CandidateData {
	m.mu.RLock()
	var hits []identity.Profile
	for _, p := range m.profiles {
		if match(p) {
			hits = append(hits, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].RenterID < hits[j].RenterID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]identity.CandidateData, len(hits))
	for i, p := range hits {
		out[i] = p.Candidate()
	}
	return out
}

// IsGenericName treats single-token and very short names as generic, and
// any name shared by at least the configured number of profiles.
func (m *Memory) IsGenericName(ctx context.Context, normalizedName string) (bool, error) {
	if tooShortToIdentify(normalizedName) {
		return true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.profiles {
		if p.Name == normalizedName {
			n++
			if n >= m.genericMin {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListProfilesSince returns profiles created strictly after since, oldest
// first.
func (m *Memory) ListProfilesSince(ctx context.Context, since time.Time, limit int) ([]identity.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []identity.Profile
	for _, p := range m.profiles {
		if p.CreatedAt.After(since) {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RenterID < out[j].RenterID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordDuplicateSuspect upserts the pair, keeping the latest score.
func (m *Memory) RecordDuplicateSuspect(ctx context.Context, s identity.DuplicateSuspect) error {
	if s.RenterA == "" || s.RenterB == "" || s.RenterA == s.RenterB {
		return errs.NewValidation("store.RecordDuplicateSuspect", "suspect pair needs two distinct renters", nil)
	}
	s = identity.NewDuplicateSuspect(s.RenterA, s.RenterB, s.Score, s.Confidence, s.DetectedAt)
	m.mu.Lock()
	m.suspects[[2]string{s.RenterA, s.RenterB}] = s
	m.mu.Unlock()
	return nil
}

// DuplicateSuspects lists recorded pairs ordered by score, highest first.
func (m *Memory) DuplicateSuspects(ctx context.Context, limit int) ([]identity.DuplicateSuspect, error) {
	m.mu.RLock()
	out := make([]identity.DuplicateSuspect, 0, len(m.suspects))
	for _, s := range m.suspects {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sortSuspects(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortSuspects(out []identity.DuplicateSuspect) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].RenterA != out[j].RenterA {
			return out[i].RenterA < out[j].RenterA
		}
		return out[i].RenterB < out[j].RenterB
	})
}

// Ping always succeeds; it lets the memory store stand in for the DB health check.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
