// Package scorer turns the evidence between a search input and one stored
// profile into a 0-100 score and a confidence band.
package scorer

import (
	"math"
	"sort"

	"renter-registry/internal/identity"
	"renter-registry/internal/normalize"
	"renter-registry/internal/similarity"
)

// Scorer is immutable and safe for concurrent use.
type Scorer struct {
	cfg     Config
	norm    *normalize.Normalizer
	nameSim func(a, b string) float64
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithNameSimilarity replaces the name comparison function.
func WithNameSimilarity(fn func(a, b string) float64) Option {
	return func(s *Scorer) { s.nameSim = fn }
}

// New creates a Scorer. A nil normalizer means normalize.NewDefault.
func New(cfg Config, norm *normalize.Normalizer, opts ...Option) *Scorer {
	if norm == nil {
		norm = normalize.NewDefault()
	}
	s := &Scorer{cfg: cfg, norm: norm, nameSim: similarity.NameSimilarity}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewDefault returns a Scorer with default policy and normalization.
func NewDefault() *Scorer { return New(DefaultConfig(), nil) }

func (s *Scorer) Config() Config { return s.cfg }

// ScoreToConfidence maps a score to its band.
func (s *Scorer) ScoreToConfidence(score int) identity.Confidence {
	return s.cfg.Bands.Confidence(score)
}

// CalculateMatchScore evaluates one candidate. Both sides are normalized first,
// so raw or already-normalized values are accepted. It never fails; a
// candidate without evidence comes back with ConfidenceNone.
func (s *Scorer) CalculateMatchScore(input identity.SearchInput, candidate identity.CandidateData) identity.MatchResult {
	return s.ScoreNormalized(s.NormalizeInput(input), candidate)
}

// NormalizeInput canonicalizes input once for scoring against many
// candidates. Fields that fail to normalize are dropped.
func (s *Scorer) NormalizeInput(input identity.SearchInput) identity.SearchInput {
	in, _ := s.norm.Input(input)
	return in
}

// ScoreNormalized is CalculateMatchScore for an input that already went
// through NormalizeInput. Only the candidate is normalized.
func (s *Scorer) ScoreNormalized(in identity.SearchInput, candidate identity.CandidateData) identity.MatchResult {
	c := s.norm.Candidate(candidate)

	res := identity.MatchResult{RenterID: candidate.RenterID}
	var points []float64
	var conflict float64

	for _, kind := range identity.StrongKinds {
		v, stored := in.Value(kind), c.Values(kind)
		if v == "" || len(stored) == 0 {
			continue
		}
		if containsValue(stored, v) {
			res.Signals = append(res.Signals, identity.MatchSignal{Type: kind.ExactSignal(), Strength: 1.0})
			points = append(points, s.cfg.Weights.For(kind))
			continue
		}
		amount := s.cfg.ConflictPenaltyRatio * s.cfg.Weights.For(kind)
		res.Penalties = append(res.Penalties, identity.MatchPenalty{
			Reason: identity.PenaltyConflictingStrongIdentifier,
			Amount: amount / 100,
		})
		conflict += amount
	}

	if in.Name != "" && c.Name != "" {
		strength := s.nameSim(in.Name, c.Name)
		if strength < s.cfg.NameNoiseFloor && s.cfg.PhoneticFallback && similarity.SoundsLike(in.Name, c.Name) {
			strength = s.cfg.NameNoiseFloor
		}
		if strength >= s.cfg.NameNoiseFloor {
			res.Signals = append(res.Signals, identity.MatchSignal{Type: identity.SignalNameFuzzy, Strength: strength})
			points = append(points, s.cfg.Weights.NameMax*strength)
		}
	}

	raw := s.combine(points)
	if len(res.Signals) > 0 && in.Location != "" && in.Location == c.Location {
		res.Signals = append(res.Signals, identity.MatchSignal{Type: identity.SignalLocationMatch, Strength: 1.0})
		raw += s.cfg.Weights.LocationBonus
	}
	score := math.Min(raw, 100) - conflict

	if nameOnly(res.Signals) && in.NameIsGeneric {
		ceiling := float64(s.cfg.Bands.Medium - 1)
		res.Penalties = append(res.Penalties, identity.MatchPenalty{
			Reason: identity.PenaltyGenericNameOnly,
			Amount: math.Max(0, score-ceiling) / 100,
		})
		score = math.Min(score, ceiling)
	}

	res.Score = int(math.Round(math.Max(0, math.Min(score, 100))))
	res.Confidence = s.ScoreToConfidence(res.Score)
	return res
}

// combine adds contributions largest first, each one scaled by a further
// power of the diminishing factor.
func (s *Scorer) combine(points []float64) float64 {
	sort.Sort(sort.Reverse(sort.Float64Slice(points)))
	total, scale := 0.0, 1.0
	for _, p := range points {
		total += p * scale
		scale *= s.cfg.DiminishingFactor
	}
	return total
}

// nameOnly reports whether name similarity is the only real evidence.
func nameOnly(signals []identity.MatchSignal) bool {
	hasName := false
	for _, sig := range signals {
		switch sig.Type {
		case identity.SignalNameFuzzy:
			hasName = true
		case identity.SignalLocationMatch:
		default:
			return false
		}
	}
	return hasName
}

func containsValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
