// Package matching answers "who is this renter?" against the registry. It
// normalizes the query, gathers candidates through coarse lookups, and hands
// them to the ranker.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"renter-registry/internal/domain/specs"
	"renter-registry/internal/identity"
	"renter-registry/internal/ranker"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/logging"
	"renter-registry/pkg/metrics"
)

const sourceNameBucket = "name_bucket"

// Service is safe for concurrent use. ApplyConfig swaps the policy without
// blocking in-flight searches.
type Service struct {
	provider CandidateProvider
	hints    GenericNameHints
	profiles ProfileStore
	events   events.EventStore

	engine atomic.Pointer[engine]

	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithHints(h GenericNameHints) Option { return func(s *Service) { s.hints = h } }

func WithProfileStore(p ProfileStore) Option { return func(s *Service) { s.profiles = p } }

// WithEventStore records intake outcomes as renter events.
func WithEventStore(es events.EventStore) Option { return func(s *Service) { s.events = es } }

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent("matching") }
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithClock overrides time.Now for profile timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService validates policy and builds a Service over provider.
func NewService(provider CandidateProvider, policy Policy, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, errs.NewValidation("matching.NewService", "candidate provider is required", nil)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		provider: provider,
		logger:   logging.Nop().WithComponent("matching"),
		tracer:   otel.Tracer("renter-registry/internal/matching"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Store(newEngine(policy))
	return s, nil
}

// Policy returns the policy currently in effect.
func (s *Service) Policy() Policy { return s.engine.Load().policy }

// ApplyConfig validates p and swaps it in. On error the old policy stays.
func (s *Service) ApplyConfig(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.engine.Store(newEngine(p))
	s.logger.Info("match policy applied",
		logging.Any("scoring", p.Scoring.Summary()),
		logging.Int("max_results", p.Matching.MaxResults),
		logging.Int("candidate_limit", p.Matching.CandidateLimit),
		logging.String("default_country_code", p.Normalize.DefaultCountryCode))
	return nil
}

// Search returns ranked matches for a partial identity. Identifier fields
// that fail normalization are dropped. Individual lookup failures are logged
// and skipped; Search only fails when every lookup failed.
func (s *Service) Search(ctx context.Context, in identity.SearchInput) ([]identity.MatchResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "matching.Search")
	defer span.End()
	defer func() { s.metrics.ObserveSearch(time.Since(start)) }()

	eng := s.engine.Load()
	query := s.normalizeInput(ctx, eng, in)
	span.SetAttributes(
		attribute.Int("input.identifiers", countIdentifiers(query)),
		attribute.Bool("input.has_name", query.Name != ""),
	)

	candidates, err := s.gather(ctx, eng, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate lookups failed")
		return nil, err
	}

	ranked := eng.ranker.ScoreAndRankCandidates(query, candidates)
	downgraded := len(specs.Filter(specs.OverclaimsConfidence(), ranked))
	results := ranker.EnforceMatchPolicy(ranked, eng.ranker.Policy())

	s.metrics.AddPolicyDowngrades(downgraded)
	for _, r := range results {
		s.metrics.IncResult(string(r.Confidence))
	}
	if downgraded > 0 {
		s.logger.WarnCtx(ctx, "results downgraded for lacking a strong identifier", logging.Int("count", downgraded))
	}
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("results", len(results)),
	)
	s.logger.DebugCtx(ctx, "search complete",
		logging.Int("candidates", len(candidates)),
		logging.Int("results", len(results)),
		logging.Duration("elapsed", time.Since(start)))
	return results, nil
}

// normalizeInput canonicalizes in and resolves the generic-name hint. The
// hint source is advisory; its failure leaves the caller's hint as is.
func (s *Service) normalizeInput(ctx context.Context, eng *engine, in identity.SearchInput) identity.SearchInput {
	query, failed := eng.norm.Input(in)
	for _, err := range failed {
		kind := "unknown"
		var ne *errs.NormalizationError
		if errors.As(err, &ne) {
			kind = ne.Kind
		}
		s.metrics.IncNormalizationFailure(kind)
		s.logger.DebugCtx(ctx, "input field dropped", logging.String("kind", kind), logging.String("reason", err.Error()))
	}

	if query.Name != "" && !query.NameIsGeneric && s.hints != nil {
		generic, err := s.hints.IsGenericName(ctx, query.Name)
		if err != nil {
			s.logger.WarnCtx(ctx, "generic name hint unavailable", logging.String("error", err.Error()))
		} else {
			query.NameIsGeneric = generic
		}
	}
	return query
}

type lookup struct {
	source string
	run    func(ctx context.Context) ([]identity.CandidateData, error)
}

// gather runs every applicable lookup concurrently and merges candidates by
// renter id, first row wins.
func (s *Service) gather(ctx context.Context, eng *engine, query identity.SearchInput) ([]identity.CandidateData, error) {
	limit := eng.policy.Matching.CandidateLimit
	var lookups []lookup
	for _, kind := range identity.StrongKinds {
		value := query.Value(kind)
		if value == "" {
			continue
		}
		kind := kind
		lookups = append(lookups, lookup{
			source: strings.ToLower(string(kind)),
			run: func(ctx context.Context) ([]identity.CandidateData, error) {
				return s.provider.FindByIdentifier(ctx, kind, value, limit)
			},
		})
	}
	if bucket := eng.norm.NameBucket(query.Name); bucket != "" {
		lookups = append(lookups, lookup{
			source: sourceNameBucket,
			run: func(ctx context.Context) ([]identity.CandidateData, error) {
				return s.provider.FindByNameBucket(ctx, bucket, limit)
			},
		})
	}
	if len(lookups) == 0 {
		return nil, nil
	}

	rows := make([][]identity.CandidateData, len(lookups))
	failures := make([]error, len(lookups))
	var g errgroup.Group
	for i, l := range lookups {
		i, l := i, l
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, eng.policy.Matching.LookupTimeout)
			defer cancel()
			start := time.Now()
			found, err := l.run(lctx)
			s.metrics.ObserveLookup(l.source, time.Since(start), err)
			if err != nil {
				failures[i] = fmt.Errorf("%s lookup: %w", l.source, err)
				s.logger.WarnCtx(ctx, "candidate lookup failed",
					logging.String("source", l.source),
					logging.String("error", err.Error()))
				return nil
			}
			rows[i] = found
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	if failed == len(lookups) {
		return nil, fmt.Errorf("matching: all %d candidate lookups failed: %w", failed, errors.Join(failures...))
	}

	seen := make(map[string]struct{})
	var out []identity.CandidateData
	for _, batch := range rows {
		for _, c := range batch {
			if _, ok := seen[c.RenterID]; ok {
				continue
			}
			seen[c.RenterID] = struct{}{}
			out = append(out, c)
		}
	}
	return out, nil
}

func countIdentifiers(in identity.SearchInput) int {
	n := 0
	for _, kind := range identity.StrongKinds {
		if in.Value(kind) != "" {
			n++
		}
	}
	return n
}
