package matching

import (
	"fmt"
	"strings"
	"time"

	"renter-registry/internal/normalize"
	"renter-registry/internal/ranker"
	"renter-registry/internal/scorer"
	errs "renter-registry/pkg/errors"
)

// Options tune the search fan-out and output size.
type Options struct {
	MaxResults     int           `yaml:"max_results"`
	CandidateLimit int           `yaml:"candidate_limit"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
}

// DefaultOptions returns top-10 results, 50 candidates per lookup and a two
// second lookup deadline.
func DefaultOptions() Options {
	return Options{MaxResults: 10, CandidateLimit: 50, LookupTimeout: 2 * time.Second}
}

// Policy is the complete tunable surface of matching. It is what the
// policy file decodes into.
type Policy struct {
	Normalize normalize.Config `yaml:"normalize"`
	Scoring   scorer.Config    `yaml:"scoring"`
	Matching  Options          `yaml:"matching"`
}

// DefaultPolicy returns the compiled-in defaults.
func DefaultPolicy() Policy {
	return Policy{
		Normalize: normalize.DefaultConfig(),
		Scoring:   scorer.DefaultConfig(),
		Matching:  DefaultOptions(),
	}
}

// Validate checks every section and reports all problems at once.
func (p Policy) Validate() error {
	var problems []string
	if err := p.Normalize.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := p.Scoring.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if p.Matching.MaxResults < 0 {
		problems = append(problems, fmt.Sprintf("max_results %d must not be negative", p.Matching.MaxResults))
	}
	if p.Matching.CandidateLimit <= 0 {
		problems = append(problems, fmt.Sprintf("candidate_limit %d must be positive", p.Matching.CandidateLimit))
	}
	if p.Matching.LookupTimeout <= 0 {
		problems = append(problems, "lookup_timeout must be positive")
	}
	if len(problems) > 0 {
		return errs.NewValidation("matching.Policy.Validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

// engine is the immutable bundle swapped on reload.
type engine struct {
	policy Policy
	norm   *normalize.Normalizer
	ranker *ranker.Ranker
}

func newEngine(p Policy) *engine {
	norm := normalize.New(p.Normalize)
	sc := scorer.New(p.Scoring, norm)
	return &engine{
		policy: p,
		norm:   norm,
		ranker: ranker.New(sc, ranker.PolicyOptions{MaxResults: p.Matching.MaxResults}),
	}
}
