package matching

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"renter-registry/internal/domain/specs"
	"renter-registry/internal/identity"
	"renter-registry/internal/normalize"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/logging"
)

// Intake outcomes, also used as metric labels.
const (
	OutcomeMatched  = "matched"
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
)

// Resolution is the profile a report was filed against.
type Resolution struct {
	RenterID    string
	Fingerprint string
	Created     bool
	Outcome     string
	// Match is set when an existing profile was matched by search.
	Match *identity.MatchResult
}

// ResolveIntake attaches an incoming report to a profile. A HIGH or EXACT
// result backed by a strong identifier wins; otherwise a profile keyed by the
// input fingerprint is created. Losing a create race resolves to the winner's
// profile with Created false.
func (s *Service) ResolveIntake(ctx context.Context, in identity.SearchInput) (Resolution, error) {
	if s.profiles == nil {
		return Resolution{}, errs.NewValidation("matching.ResolveIntake", "no profile store configured", nil)
	}
	ctx, span := s.tracer.Start(ctx, "matching.ResolveIntake")
	defer span.End()

	results, err := s.Search(ctx, in)
	if err != nil {
		return Resolution{}, err
	}
	strong := specs.DuplicateSuspect()
	for i := range results {
		if strong.IsSatisfiedBy(results[i]) {
			match := results[i]
			s.record(ctx, events.IntakeMatched{
				Base:       events.Base{Ts: s.now().UTC(), RID: match.RenterID},
				Score:      match.Score,
				Confidence: string(match.Confidence),
				Signals:    signalNames(match.Signals),
			})
			s.metrics.IncIntake(OutcomeMatched)
			span.SetAttributes(attribute.String("outcome", OutcomeMatched))
			return Resolution{RenterID: match.RenterID, Outcome: OutcomeMatched, Match: &match}, nil
		}
	}

	eng := s.engine.Load()
	query, _ := eng.norm.Input(in)
	ids := normalize.InputIdentifiers(query)
	fp, err := eng.norm.Fingerprint(ids, query.Name)
	if err != nil {
		return Resolution{}, err
	}

	profile := identity.Profile{
		Fingerprint: fp,
		Name:        query.Name,
		NameBucket:  eng.norm.NameBucket(query.Name),
		Location:    query.Location,
		Identifiers: ids,
		CreatedAt:   s.now().UTC(),
	}
	id, err := s.profiles.CreateProfile(ctx, profile)
	switch {
	case err == nil:
		s.record(ctx, events.ProfileCreated{
			Base:        events.Base{Ts: profile.CreatedAt, RID: id},
			Fingerprint: fp,
			Kinds:       kindNames(ids),
			HasName:     profile.Name != "",
		})
		s.metrics.IncIntake(OutcomeCreated)
		span.SetAttributes(attribute.String("outcome", OutcomeCreated))
		s.logger.InfoCtx(ctx, "renter profile created",
			logging.String("renter_id", id),
			logging.String("fingerprint", fp),
			logging.Int("identifiers", len(ids)))
		return Resolution{RenterID: id, Fingerprint: fp, Created: true, Outcome: OutcomeCreated}, nil

	case errors.Is(err, errs.ErrAlreadyExists):
		existing, ferr := s.profiles.FindByFingerprint(ctx, fp)
		if ferr != nil {
			return Resolution{}, ferr
		}
		s.metrics.IncIntake(OutcomeExisting)
		span.SetAttributes(attribute.String("outcome", OutcomeExisting))
		return Resolution{RenterID: existing, Fingerprint: fp, Outcome: OutcomeExisting}, nil

	default:
		return Resolution{}, err
	}
}

// record appends to the event store when one is configured. Failures are
// logged; the audit trail never blocks intake.
func (s *Service) record(ctx context.Context, ev events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error("failed to record renter event", err,
			logging.String("type", ev.Type()),
			logging.String("renter_id", ev.RenterID()))
	}
}

func signalNames(signals []identity.MatchSignal) []string {
	out := make([]string, len(signals))
	for i, sig := range signals {
		out[i] = string(sig.Type)
	}
	return out
}

func kindNames(ids []identity.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id.Kind)
	}
	return out
}
