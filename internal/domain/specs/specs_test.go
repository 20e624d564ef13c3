package specs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"renter-registry/internal/identity"
)

func TestComposition(t *testing.T) {
	even := New(func(n int) bool { return n%2 == 0 })
	positive := New(func(n int) bool { return n > 0 })

	assert.True(t, even.And(positive).IsSatisfiedBy(4))
	assert.False(t, even.And(positive).IsSatisfiedBy(-4))
	assert.True(t, even.Or(positive).IsSatisfiedBy(3))
	assert.False(t, even.Or(positive).IsSatisfiedBy(-3))
	assert.True(t, even.Not().IsSatisfiedBy(3))
	assert.Equal(t, []int{2, 4}, Filter(even.And(positive), []int{-2, 1, 2, 3, 4}))
}

func TestMatchSpecs(t *testing.T) {
	strongHigh := identity.MatchResult{
		Confidence: identity.ConfidenceHigh,
		Signals:    []identity.MatchSignal{{Type: identity.SignalPhoneExact, Strength: 1}},
	}
	nameHigh := identity.MatchResult{
		Confidence: identity.ConfidenceHigh,
		Signals:    []identity.MatchSignal{{Type: identity.SignalNameFuzzy, Strength: 1}},
	}
	nameMedium := identity.MatchResult{
		Confidence: identity.ConfidenceMedium,
		Signals:    []identity.MatchSignal{{Type: identity.SignalNameFuzzy, Strength: 1}},
	}

	assert.False(t, OverclaimsConfidence().IsSatisfiedBy(strongHigh))
	assert.True(t, OverclaimsConfidence().IsSatisfiedBy(nameHigh))
	assert.False(t, OverclaimsConfidence().IsSatisfiedBy(nameMedium))

	assert.True(t, DuplicateSuspect().IsSatisfiedBy(strongHigh))
	assert.False(t, DuplicateSuspect().IsSatisfiedBy(nameHigh))

	assert.True(t, Reported().IsSatisfiedBy(nameMedium))
	assert.False(t, Reported().IsSatisfiedBy(identity.MatchResult{}))
}
