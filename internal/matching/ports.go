package matching

import (
	"context"
	"time"

	"renter-registry/internal/identity"
)

// CandidateProvider returns stored profiles for coarse lookups. Values are
// already normalized. Implementations return at most limit candidates.
type CandidateProvider interface {
	FindByIdentifier(ctx context.Context, kind identity.IdentifierKind, normalized string, limit int) ([]identity.CandidateData, error)
	FindByNameBucket(ctx context.Context, bucket string, limit int) ([]identity.CandidateData, error)
}

// GenericNameHints decides whether a normalized name is too common to
// identify anyone on its own.
type GenericNameHints interface {
	IsGenericName(ctx context.Context, normalizedName string) (bool, error)
}

// ProfileStore persists new profiles. CreateProfile wraps
// errors.ErrAlreadyExists when the fingerprint is taken.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p identity.Profile) (string, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (string, error)
}

// ProfileLister feeds the duplicate sweep.
type ProfileLister interface {
	ListProfilesSince(ctx context.Context, since time.Time, limit int) ([]identity.Profile, error)
}

// SuspectRecorder stores duplicate suspect pairs. Recording the same pair
// twice is not an error.
type SuspectRecorder interface {
	RecordDuplicateSuspect(ctx context.Context, s identity.DuplicateSuspect) error
}
