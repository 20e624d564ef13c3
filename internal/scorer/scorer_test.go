package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renter-registry/internal/identity"
	errs "renter-registry/pkg/errors"
)

func TestExactIdentifierDominates(t *testing.T) {
	s := NewDefault()
	tests := []struct {
		name  string
		input identity.SearchInput
		cand  identity.CandidateData
		score int
		conf  identity.Confidence
		sig   identity.SignalType
	}{
		{
			name:  "phone only",
			input: identity.SearchInput{Phone: "09171234567"},
			cand:  identity.CandidateData{RenterID: "A", Phones: []string{"+639171234567"}},
			score: 85, conf: identity.ConfidenceHigh, sig: identity.SignalPhoneExact,
		},
		{
			name:  "email only",
			input: identity.SearchInput{Email: "Juan@Example.com"},
			cand:  identity.CandidateData{RenterID: "A", Emails: []string{"juan@example.com"}},
			score: 80, conf: identity.ConfidenceHigh, sig: identity.SignalEmailExact,
		},
		{
			name:  "facebook only",
			input: identity.SearchInput{Facebook: "https://www.facebook.com/juan.delacruz?ref=x"},
			cand:  identity.CandidateData{RenterID: "A", FacebookIDs: []string{"juan.delacruz"}},
			score: 75, conf: identity.ConfidenceHigh, sig: identity.SignalFacebookExact,
		},
		{
			name:  "govt id only",
			input: identity.SearchInput{GovtID: "a-123-456"},
			cand:  identity.CandidateData{RenterID: "A", GovtIDs: []string{"A123456"}},
			score: 95, conf: identity.ConfidenceExact, sig: identity.SignalGovtIDExact,
		},
		{
			name:  "second stored phone",
			input: identity.SearchInput{Phone: "0917 000 0002"},
			cand:  identity.CandidateData{RenterID: "A", Phones: []string{"+639170000001", "+639170000002"}},
			score: 85, conf: identity.ConfidenceHigh, sig: identity.SignalPhoneExact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.CalculateMatchScore(tt.input, tt.cand)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.conf, r.Confidence)
			require.Len(t, r.Signals, 1)
			assert.Equal(t, tt.sig, r.Signals[0].Type)
			assert.Equal(t, 1.0, r.Signals[0].Strength)
			assert.Empty(t, r.Penalties)
		})
	}
}

func TestUntidyFacebookURLStillMatches(t *testing.T) {
	for _, raw := range []string{
		"https://www.facebook.com/juan.delacruz ?ref=x",
		"juan.delacruz #about",
	} {
		r := NewDefault().CalculateMatchScore(
			identity.SearchInput{Facebook: raw},
			identity.CandidateData{RenterID: "A", FacebookIDs: []string{"juan.delacruz"}},
		)
		assert.True(t, r.HasSignal(identity.SignalFacebookExact), raw)
		assert.False(t, r.HasPenalty(identity.PenaltyConflictingStrongIdentifier), raw)
		assert.Equal(t, 75, r.Score, raw)
	}
}

func TestScoreNormalizedMatchesCalculate(t *testing.T) {
	s := NewDefault()
	input := identity.SearchInput{
		Name:     "Dr. Juan Dela Cruz",
		Phone:    "0917 123 4567",
		Facebook: "https://www.facebook.com/juan.delacruz ?ref=x",
		Location: "Makati  City",
	}
	candidates := []identity.CandidateData{
		{RenterID: "A", Name: "juan dela cruz", Phones: []string{"+639171234567"}},
		{RenterID: "B", Name: "Juan Dela Cruz", FacebookIDs: []string{"other.person"}, Location: "makati city"},
		{RenterID: "C", Name: "Pedro Penduko"},
	}
	in := s.NormalizeInput(input)
	assert.Equal(t, in, s.NormalizeInput(in))
	for _, c := range candidates {
		assert.Equal(t, s.CalculateMatchScore(input, c), s.ScoreNormalized(in, c), c.RenterID)
	}
}

func TestSignalsCombineWithDiminishingReturns(t *testing.T) {
	s := NewDefault()

	r := s.CalculateMatchScore(
		identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567"},
		identity.CandidateData{RenterID: "A", Name: "Juan Dela Cruz", Phones: []string{"+639171234567"}},
	)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, identity.ConfidenceExact, r.Confidence)
	assert.True(t, r.HasSignal(identity.SignalPhoneExact))
	assert.True(t, r.HasSignal(identity.SignalNameFuzzy))

	r = s.CalculateMatchScore(
		identity.SearchInput{Phone: "09171234567", Email: "j@x.com"},
		identity.CandidateData{RenterID: "A", Phones: []string{"+639171234567"}, Emails: []string{"j@x.com"}},
	)
	assert.Equal(t, 100, r.Score)
}

func TestNameOnlyNeverExceedsMedium(t *testing.T) {
	s := NewDefault()

	r := s.CalculateMatchScore(
		identity.SearchInput{Name: "Juan Dela Cruz"},
		identity.CandidateData{RenterID: "A", Name: "juan dela cruz"},
	)
	assert.Equal(t, 55, r.Score)
	assert.Equal(t, identity.ConfidenceMedium, r.Confidence)

	r = s.CalculateMatchScore(
		identity.SearchInput{Name: "Juan Dela Cruz", Location: "Makati City"},
		identity.CandidateData{RenterID: "A", Name: "juan dela cruz", Location: "makati  city"},
	)
	assert.Equal(t, 60, r.Score)
	assert.Equal(t, identity.ConfidenceMedium, r.Confidence)
	assert.True(t, r.HasSignal(identity.SignalLocationMatch))

	r = s.CalculateMatchScore(
		identity.SearchInput{Name: "Juan Dela Crux"},
		identity.CandidateData{RenterID: "A", Name: "juan dela cruz"},
	)
	assert.Equal(t, identity.ConfidenceMedium, r.Confidence)
	assert.Less(t, r.Score, 55)
}

func TestLocationAloneIsNoEvidence(t *testing.T) {
	r := NewDefault().CalculateMatchScore(
		identity.SearchInput{Location: "Makati City"},
		identity.CandidateData{RenterID: "A", Location: "makati city"},
	)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, identity.ConfidenceNone, r.Confidence)
	assert.Empty(t, r.Signals)
}

func TestNameBelowNoiseFloor(t *testing.T) {
	r := NewDefault().CalculateMatchScore(
		identity.SearchInput{Name: "Juan Dela Cruz"},
		identity.CandidateData{RenterID: "A", Name: "Pedro Penduko"},
	)
	assert.Empty(t, r.Signals)
	assert.Equal(t, identity.ConfidenceNone, r.Confidence)
}

func TestPhoneticFallback(t *testing.T) {
	low := func(a, b string) float64 { return 0.1 }

	s := New(DefaultConfig(), nil, WithNameSimilarity(low))
	r := s.CalculateMatchScore(
		identity.SearchInput{Name: "Jon Smyth"},
		identity.CandidateData{RenterID: "A", Name: "John Smith"},
	)
	require.Len(t, r.Signals, 1)
	assert.Equal(t, 0.5, r.Signals[0].Strength)
	assert.Equal(t, identity.ConfidenceLow, r.Confidence)

	cfg := DefaultConfig()
	cfg.PhoneticFallback = false
	r = New(cfg, nil, WithNameSimilarity(low)).CalculateMatchScore(
		identity.SearchInput{Name: "Jon Smyth"},
		identity.CandidateData{RenterID: "A", Name: "John Smith"},
	)
	assert.Empty(t, r.Signals)
}

func TestConflictingIdentifierPenalty(t *testing.T) {
	s := NewDefault()
	input := identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567"}

	matching := s.CalculateMatchScore(input, identity.CandidateData{
		RenterID: "A", Name: "Juan Dela Cruz", Phones: []string{"+639171234567"},
	})
	conflicting := s.CalculateMatchScore(input, identity.CandidateData{
		RenterID: "B", Name: "Juan Dela Cruz", Phones: []string{"+639009999999"},
	})
	nameOnly := s.CalculateMatchScore(identity.SearchInput{Name: "Juan Dela Cruz"}, identity.CandidateData{
		RenterID: "C", Name: "Juan Dela Cruz",
	})

	assert.Greater(t, matching.Score, conflicting.Score)
	assert.Less(t, conflicting.Score, nameOnly.Score)
	require.True(t, conflicting.HasPenalty(identity.PenaltyConflictingStrongIdentifier))
	assert.InDelta(t, 0.425, conflicting.Penalties[0].Amount, 1e-9)
	assert.False(t, conflicting.Confidence.AtLeast(identity.ConfidenceMedium))

	t.Run("absent on one side is not a conflict", func(t *testing.T) {
		r := s.CalculateMatchScore(input, identity.CandidateData{RenterID: "D", Name: "Juan Dela Cruz"})
		assert.Empty(t, r.Penalties)
		assert.Equal(t, 55, r.Score)
	})

	t.Run("conflict on another kind still counts", func(t *testing.T) {
		r := s.CalculateMatchScore(
			identity.SearchInput{Phone: "09171234567", Email: "a@x.com"},
			identity.CandidateData{RenterID: "E", Phones: []string{"+639171234567"}, Emails: []string{"b@x.com"}},
		)
		assert.Equal(t, 45, r.Score)
		assert.True(t, r.HasSignal(identity.SignalPhoneExact))
		assert.True(t, r.HasPenalty(identity.PenaltyConflictingStrongIdentifier))
	})
}

func TestGenericNameOnly(t *testing.T) {
	s := NewDefault()

	t.Run("hinted single token", func(t *testing.T) {
		r := s.CalculateMatchScore(identity.SearchInput{Name: "Juan", NameIsGeneric: true}, identity.CandidateData{RenterID: "A", Name: "juan"})
		assert.Equal(t, 49, r.Score)
		assert.Equal(t, identity.ConfidenceLow, r.Confidence)
		require.True(t, r.HasPenalty(identity.PenaltyGenericNameOnly))
		assert.InDelta(t, 0.06, r.Penalties[0].Amount, 1e-9)
	})

	t.Run("no hint means not generic", func(t *testing.T) {
		for _, name := range []string{"Juan", "Li U"} {
			r := s.CalculateMatchScore(identity.SearchInput{Name: name}, identity.CandidateData{RenterID: "A", Name: name})
			assert.Equal(t, 55, r.Score, name)
			assert.Equal(t, identity.ConfidenceMedium, r.Confidence, name)
			assert.False(t, r.HasPenalty(identity.PenaltyGenericNameOnly), name)
		}
	})

	t.Run("caller hint", func(t *testing.T) {
		r := s.CalculateMatchScore(
			identity.SearchInput{Name: "Juan Dela Cruz", Location: "Makati", NameIsGeneric: true},
			identity.CandidateData{RenterID: "A", Name: "juan dela cruz", Location: "makati"},
		)
		assert.Equal(t, 49, r.Score)
		assert.True(t, r.HasPenalty(identity.PenaltyGenericNameOnly))
	})

	t.Run("not applied with a strong signal", func(t *testing.T) {
		r := s.CalculateMatchScore(
			identity.SearchInput{Name: "Juan", Phone: "09171234567", NameIsGeneric: true},
			identity.CandidateData{RenterID: "A", Name: "juan", Phones: []string{"+639171234567"}},
		)
		assert.False(t, r.HasPenalty(identity.PenaltyGenericNameOnly))
		assert.Equal(t, identity.ConfidenceExact, r.Confidence)
	})
}

func TestScoreToConfidence(t *testing.T) {
	s := NewDefault()
	tests := map[int]identity.Confidence{
		100: identity.ConfidenceExact,
		90:  identity.ConfidenceExact,
		89:  identity.ConfidenceHigh,
		70:  identity.ConfidenceHigh,
		69:  identity.ConfidenceMedium,
		50:  identity.ConfidenceMedium,
		49:  identity.ConfidenceLow,
		25:  identity.ConfidenceLow,
		24:  identity.ConfidenceNone,
		0:   identity.ConfidenceNone,
	}
	for score, want := range tests {
		assert.Equal(t, want, s.ScoreToConfidence(score), "score %d", score)
	}
	assert.Equal(t, "Exact match", identity.ConfidenceToLabel(identity.ConfidenceExact))
	assert.Equal(t, "No match", identity.ConfidenceToLabel(identity.ConfidenceNone))
}

func TestBandsCeiling(t *testing.T) {
	b := DefaultConfig().Bands
	assert.Equal(t, 69, b.Ceiling(identity.ConfidenceMedium))
	assert.Equal(t, 49, b.Ceiling(identity.ConfidenceLow))
	assert.Equal(t, 100, b.Ceiling(identity.ConfidenceExact))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bands out of order", func(c *Config) { c.Bands.High = 95 }},
		{"name can reach high", func(c *Config) { c.Weights.NameMax = 68 }},
		{"weak phone weight", func(c *Config) { c.Weights.PhoneExact = 40 }},
		{"noise floor zero", func(c *Config) { c.NameNoiseFloor = 0 }},
		{"diminishing factor above one", func(c *Config) { c.DiminishingFactor = 1.5 }},
		{"negative conflict ratio", func(c *Config) { c.ConflictPenaltyRatio = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrValidation))
		})
	}
}

func BenchmarkCalculateMatchScore(b *testing.B) {
	s := NewDefault()
	in := identity.SearchInput{Name: "Juan Dela Cruz", Phone: "09171234567", Location: "Makati"}
	c := identity.CandidateData{RenterID: "A", Name: "Juan dela Cruz", Phones: []string{"+639171234567"}, Location: "makati"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.CalculateMatchScore(in, c)
	}
}
