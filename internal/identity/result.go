package identity

// SignalType names a piece of evidence that two identities are the same person.
type SignalType string

const (
	SignalPhoneExact    SignalType = "PHONE_EXACT"
	SignalEmailExact    SignalType = "EMAIL_EXACT"
	SignalFacebookExact SignalType = "FACEBOOK_EXACT"
	SignalGovtIDExact   SignalType = "GOVT_ID_EXACT"
	SignalNameFuzzy     SignalType = "NAME_FUZZY"
	SignalLocationMatch SignalType = "LOCATION_MATCH"
)

// IsStrong reports whether the signal is an exact strong-identifier hit.
func (s SignalType) IsStrong() bool {
	switch s {
	case SignalPhoneExact, SignalEmailExact, SignalFacebookExact, SignalGovtIDExact:
		return true
	}
	return false
}

// MatchSignal is one piece of evidence with a strength in [0,1].
type MatchSignal struct {
	Type     SignalType `json:"type"`
	Strength float64    `json:"strength"`
}

// PenaltyReason names evidence that two identities are distinct.
type PenaltyReason string

const (
	PenaltyConflictingStrongIdentifier PenaltyReason = "CONFLICTING_STRONG_IDENTIFIER"
	PenaltyGenericNameOnly             PenaltyReason = "GENERIC_NAME_ONLY"
)

// MatchPenalty is subtracted from the raw score. Amount is a fraction of 100.
type MatchPenalty struct {
	Reason PenaltyReason `json:"reason"`
	Amount float64       `json:"amount"`
}

// Confidence is the coarse band derived from a score.
type Confidence string

const (
	// ConfidenceNone marks scores below the LOW band; such results are dropped.
	ConfidenceNone   Confidence = ""
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceExact  Confidence = "EXACT"
)

// Rank orders bands; ConfidenceNone ranks lowest.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceExact:
		return 4
	}
	return 0
}

func (c Confidence) AtLeast(other Confidence) bool { return c.Rank() >= other.Rank() }

// Label is the human readable text for a band.
func (c Confidence) Label() string {
	switch c {
	case ConfidenceExact:
		return "Exact match"
	case ConfidenceHigh:
		return "High confidence match"
	case ConfidenceMedium:
		return "Possible match"
	case ConfidenceLow:
		return "Weak match"
	}
	return "No match"
}

// ConfidenceToLabel is the function form of Confidence.Label.
func ConfidenceToLabel(c Confidence) string { return c.Label() }

// MatchResult is the evaluation of one candidate against a search input.
type MatchResult struct {
	RenterID   string         `json:"renter_id"`
	Score      int            `json:"score"`
	Confidence Confidence     `json:"confidence"`
	Signals    []MatchSignal  `json:"signals"`
	Penalties  []MatchPenalty `json:"penalties,omitempty"`
}

// HasStrongSignal reports whether any contributing signal is a strong exact match.
func (r MatchResult) HasStrongSignal() bool {
	for _, s := range r.Signals {
		if s.Type.IsStrong() {
			return true
		}
	}
	return false
}

// HasSignal reports whether a signal of type t contributed.
func (r MatchResult) HasSignal(t SignalType) bool {
	for _, s := range r.Signals {
		if s.Type == t {
			return true
		}
	}
	return false
}

// HasPenalty reports whether a penalty with the given reason applied.
func (r MatchResult) HasPenalty(reason PenaltyReason) bool {
	for _, p := range r.Penalties {
		if p.Reason == reason {
			return true
		}
	}
	return false
}
