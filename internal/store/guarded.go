package store

import (
	"context"

	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	"renter-registry/pkg/circuit"
	errs "renter-registry/pkg/errors"
)

// Lookups is the read side the matching service fans out to.
type Lookups interface {
	matching.CandidateProvider
	matching.GenericNameHints
}

// Guarded fails candidate lookups fast while the underlying store is down,
// so searches stop waiting on a dead database. Writes are not guarded.
type Guarded struct {
	inner   Lookups
	breaker *circuit.Breaker
}

var (
	_ matching.CandidateProvider = (*Guarded)(nil)
	_ matching.GenericNameHints  = (*Guarded)(nil)
)

func NewGuarded(inner Lookups, b *circuit.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: b}
}

func (g *Guarded) FindByIdentifier(ctx context.Context, kind identity.IdentifierKind, normalized string, limit int) ([]identity.CandidateData, error) {
	var out []identity.CandidateData
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.FindByIdentifier(ctx, kind, normalized, limit)
		return err
	}, rejected("store.FindByIdentifier"))
	return out, err
}

func (g *Guarded) FindByNameBucket(ctx context.Context, bucket string, limit int) ([]identity.CandidateData, error) {
	var out []identity.CandidateData
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.FindByNameBucket(ctx, bucket, limit)
		return err
	}, rejected("store.FindByNameBucket"))
	return out, err
}

func (g *Guarded) IsGenericName(ctx context.Context, normalizedName string) (bool, error) {
	var generic bool
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		generic, err = g.inner.IsGenericName(ctx, normalizedName)
		return err
	}, rejected("store.IsGenericName"))
	return generic, err
}

// rejected tags short-circuited calls as storage errors; other failures
// pass through unchanged.
func rejected(op string) func(context.Context, error) error {
	return func(_ context.Context, cause error) error {
		if cause == circuit.ErrOpen {
			return errs.NewDB(op, "store unavailable", cause)
		}
		return cause
	}
}
