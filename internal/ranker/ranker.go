// Package ranker scores candidate rows, collapses rows that belong to the
// same profile, orders them and applies the final reporting policy.
package ranker

import (
	"sort"

	"renter-registry/internal/domain/specs"
	"renter-registry/internal/identity"
	"renter-registry/internal/scorer"
)

// PolicyOptions configures EnforceMatchPolicy.
type PolicyOptions struct {
	// MaxResults caps the returned list; 0 means no cap.
	MaxResults int `yaml:"max_results"`
	// Bands locate the MEDIUM ceiling used when downgrading.
	Bands scorer.Bands `yaml:"-"`
}

// DefaultPolicyOptions returns top-10 with the default bands.
func DefaultPolicyOptions() PolicyOptions {
	return PolicyOptions{MaxResults: 10, Bands: scorer.DefaultConfig().Bands}
}

// Ranker is immutable and safe for concurrent use.
type Ranker struct {
	scorer *scorer.Scorer
	policy PolicyOptions
}

// New creates a Ranker. The policy's bands are taken from the scorer.
func New(s *scorer.Scorer, policy PolicyOptions) *Ranker {
	policy.Bands = s.Config().Bands
	return &Ranker{scorer: s, policy: policy}
}

// NewDefault returns a Ranker over scorer.NewDefault.
func NewDefault() *Ranker { return New(scorer.NewDefault(), DefaultPolicyOptions()) }

func (r *Ranker) Scorer() *scorer.Scorer { return r.scorer }
func (r *Ranker) Policy() PolicyOptions  { return r.policy }

// ScoreAndRankCandidates scores every candidate, drops results below LOW,
// keeps the best-scoring row per renter id and sorts by score descending,
// then renter id.
func (r *Ranker) ScoreAndRankCandidates(input identity.SearchInput, candidates []identity.CandidateData) []identity.MatchResult {
	reported := specs.Reported()
	in := r.scorer.NormalizeInput(input)
	results := make([]identity.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		res := r.scorer.ScoreNormalized(in, c)
		if reported.IsSatisfiedBy(res) {
			results = append(results, res)
		}
	}
	results = dedupe(results)
	SortResults(results)
	return results
}

// Rank is ScoreAndRankCandidates followed by EnforceMatchPolicy.
func (r *Ranker) Rank(input identity.SearchInput, candidates []identity.CandidateData) []identity.MatchResult {
	return EnforceMatchPolicy(r.ScoreAndRankCandidates(input, candidates), r.policy)
}

// EnforceMatchPolicy is the last gate before results leave the engine. A
// result at HIGH or EXACT without a strong identifier behind it is lowered to
// MEDIUM, its score clamped to the MEDIUM ceiling. The list is deduplicated,
// re-sorted and cut to MaxResults. The input slice is not modified. Zero
// Bands mean the default bands.
func EnforceMatchPolicy(results []identity.MatchResult, opts PolicyOptions) []identity.MatchResult {
	out := dedupe(append([]identity.MatchResult(nil), results...))

	bands := opts.Bands
	if bands == (scorer.Bands{}) {
		bands = scorer.DefaultConfig().Bands
	}
	overclaims := specs.OverclaimsConfidence()
	ceiling := min(max(bands.Ceiling(identity.ConfidenceMedium), 0), 100)
	for i := range out {
		if !overclaims.IsSatisfiedBy(out[i]) {
			continue
		}
		out[i].Confidence = identity.ConfidenceMedium
		if out[i].Score > ceiling {
			out[i].Score = ceiling
		}
	}

	SortResults(out)
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out
}

// SortResults orders by score descending with renter id as tie-break.
func SortResults(results []identity.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RenterID < results[j].RenterID
	})
}

// dedupe keeps the highest-scoring result per renter id, first one on ties.
func dedupe(results []identity.MatchResult) []identity.MatchResult {
	index := make(map[string]int, len(results))
	out := results[:0]
	for _, res := range results {
		if i, ok := index[res.RenterID]; ok {
			if res.Score > out[i].Score {
				out[i] = res
			}
			continue
		}
		index[res.RenterID] = len(out)
		out = append(out, res)
	}
	return out
}
