package specs

import "renter-registry/internal/identity"

// HasStrongIdentifier holds when a phone, email, facebook or government id
// matched exactly.
func HasStrongIdentifier() Specification[identity.MatchResult] {
	return New(func(r identity.MatchResult) bool { return r.HasStrongSignal() })
}

// ConfidenceAtLeast holds when the result's band is c or better.
func ConfidenceAtLeast(c identity.Confidence) Specification[identity.MatchResult] {
	return New(func(r identity.MatchResult) bool { return r.Confidence.AtLeast(c) })
}

// Reported holds for results that made it into a band at all.
func Reported() Specification[identity.MatchResult] {
	return New(func(r identity.MatchResult) bool { return r.Confidence != identity.ConfidenceNone })
}

// HasPenalty holds when a penalty with the given reason applied.
func HasPenalty(reason identity.PenaltyReason) Specification[identity.MatchResult] {
	return New(func(r identity.MatchResult) bool { return r.HasPenalty(reason) })
}

// OverclaimsConfidence finds results reported at HIGH or better without any
// strong identifier behind them.
func OverclaimsConfidence() Specification[identity.MatchResult] {
	return ConfidenceAtLeast(identity.ConfidenceHigh).And(HasStrongIdentifier().Not())
}

// DuplicateSuspect marks results strong enough to flag two profiles as the
// same person.
func DuplicateSuspect() Specification[identity.MatchResult] {
	return ConfidenceAtLeast(identity.ConfidenceHigh).And(HasStrongIdentifier())
}
