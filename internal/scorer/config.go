package scorer

import (
	"fmt"
	"strings"

	"renter-registry/internal/identity"
	errs "renter-registry/pkg/errors"
)

// Weights are points on the 0-100 scale.
type Weights struct {
	PhoneExact    float64 `yaml:"phone_exact"`
	EmailExact    float64 `yaml:"email_exact"`
	FacebookExact float64 `yaml:"facebook_exact"`
	GovtIDExact   float64 `yaml:"govt_id_exact"`
	NameMax       float64 `yaml:"name_max"` // worth of a name similarity of 1.0
	LocationBonus float64 `yaml:"location_bonus"`
}

// For returns the exact-match weight of an identifier kind.
func (w Weights) For(kind identity.IdentifierKind) float64 {
	switch kind {
	case identity.KindPhone:
		return w.PhoneExact
	case identity.KindEmail:
		return w.EmailExact
	case identity.KindFacebook:
		return w.FacebookExact
	case identity.KindGovtID:
		return w.GovtIDExact
	}
	return 0
}

// Bands are the lower bounds of each confidence band.
type Bands struct {
	Exact  int `yaml:"exact"`
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
	Low    int `yaml:"low"`
}

// Confidence maps a score to its band. Scores under Low map to ConfidenceNone.
func (b Bands) Confidence(score int) identity.Confidence {
	switch {
	case score >= b.Exact:
		return identity.ConfidenceExact
	case score >= b.High:
		return identity.ConfidenceHigh
	case score >= b.Medium:
		return identity.ConfidenceMedium
	case score >= b.Low:
		return identity.ConfidenceLow
	}
	return identity.ConfidenceNone
}

// Ceiling returns the highest score still inside band c.
func (b Bands) Ceiling(c identity.Confidence) int {
	switch c {
	case identity.ConfidenceLow:
		return b.Medium - 1
	case identity.ConfidenceMedium:
		return b.High - 1
	case identity.ConfidenceHigh:
		return b.Exact - 1
	case identity.ConfidenceExact:
		return 100
	}
	return b.Low - 1
}

// Config holds every tunable of the scorer.
type Config struct {
	Weights Weights `yaml:"weights"`
	Bands   Bands   `yaml:"bands"`

	// NameNoiseFloor is the minimum name similarity that counts as a signal.
	NameNoiseFloor float64 `yaml:"name_noise_floor"`

	// DiminishingFactor scales each contribution after the largest one.
	DiminishingFactor float64 `yaml:"diminishing_factor"`

	// ConflictPenaltyRatio is the share of a kind's weight removed when both
	// sides carry different values of it.
	ConflictPenaltyRatio float64 `yaml:"conflict_penalty_ratio"`

	// PhoneticFallback lifts sound-alike names to the noise floor.
	PhoneticFallback bool `yaml:"phonetic_fallback"`
}

// DefaultConfig returns the stock scoring policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			PhoneExact:    85,
			EmailExact:    80,
			FacebookExact: 75,
			GovtIDExact:   95,
			NameMax:       55,
			LocationBonus: 5,
		},
		Bands: Bands{
			Exact:  90,
			High:   70,
			Medium: 50,
			Low:    25,
		},
		NameNoiseFloor:       0.5,
		DiminishingFactor:    0.5,
		ConflictPenaltyRatio: 0.5,
		PhoneticFallback:     true,
	}
}

// Validate checks ranges and the cross-field rules that keep name evidence
// below HIGH and a single strong identifier at HIGH or above.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	b := c.Bands
	if !(b.Exact <= 100 && b.Exact > b.High && b.High > b.Medium && b.Medium > b.Low && b.Low > 0) {
		add("bands must satisfy 100 >= exact > high > medium > low > 0, got %d/%d/%d/%d", b.Exact, b.High, b.Medium, b.Low)
	}
	for _, kind := range identity.StrongKinds {
		if w := c.Weights.For(kind); w < float64(b.High) || w > 100 {
			add("%s weight %.1f must be between the high band (%d) and 100", kind, w, b.High)
		}
	}
	if c.Weights.NameMax <= 0 {
		add("name_max must be positive")
	}
	if c.Weights.LocationBonus < 0 {
		add("location_bonus must not be negative")
	}
	if c.Weights.NameMax+c.Weights.LocationBonus >= float64(b.High) {
		add("name_max + location_bonus (%.1f) must stay below the high band (%d)", c.Weights.NameMax+c.Weights.LocationBonus, b.High)
	}
	if c.NameNoiseFloor <= 0 || c.NameNoiseFloor > 1 {
		add("name_noise_floor %.2f must be in (0,1]", c.NameNoiseFloor)
	}
	if c.DiminishingFactor <= 0 || c.DiminishingFactor > 1 {
		add("diminishing_factor %.2f must be in (0,1]", c.DiminishingFactor)
	}
	if c.ConflictPenaltyRatio < 0 || c.ConflictPenaltyRatio > 1 {
		add("conflict_penalty_ratio %.2f must be in [0,1]", c.ConflictPenaltyRatio)
	}

	if len(problems) > 0 {
		return errs.NewValidation("scorer.Config.Validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Summary returns the policy as loggable key/values.
func (c Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"bands":                  fmt.Sprintf("%d/%d/%d/%d", c.Bands.Exact, c.Bands.High, c.Bands.Medium, c.Bands.Low),
		"phone_exact":            c.Weights.PhoneExact,
		"email_exact":            c.Weights.EmailExact,
		"facebook_exact":         c.Weights.FacebookExact,
		"govt_id_exact":          c.Weights.GovtIDExact,
		"name_max":               c.Weights.NameMax,
		"location_bonus":         c.Weights.LocationBonus,
		"name_noise_floor":       c.NameNoiseFloor,
		"diminishing_factor":     c.DiminishingFactor,
		"conflict_penalty_ratio": c.ConflictPenaltyRatio,
	}
}
