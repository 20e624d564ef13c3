package identity

import "time"

// Profile is a stored renter identity. Name and Location are normalized;
// every Identifier carries its normalized value.
type Profile struct {
	RenterID    string       `json:"renter_id"`
	Fingerprint string       `json:"fingerprint"`
	Name        string       `json:"name,omitempty"`
	NameBucket  string       `json:"name_bucket,omitempty"`
	Location    string       `json:"location,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Candidate returns the profile in the shape the scorer compares.
func (p Profile) Candidate() CandidateData {
	c := CandidateData{RenterID: p.RenterID, Name: p.Name, Location: p.Location}
	for _, id := range p.Identifiers {
		c.Add(id.Kind, id.Normalized)
	}
	return c
}

// SearchInput turns the profile back into a query, taking the first value
// of each identifier kind.
func (p Profile) SearchInput() SearchInput {
	in := SearchInput{Name: p.Name, Location: p.Location}
	for _, id := range p.Identifiers {
		switch id.Kind {
		case KindPhone:
			if in.Phone == "" {
				in.Phone = id.Normalized
			}
		case KindEmail:
			if in.Email == "" {
				in.Email = id.Normalized
			}
		case KindFacebook:
			if in.Facebook == "" {
				in.Facebook = id.Normalized
			}
		case KindGovtID:
			if in.GovtID == "" {
				in.GovtID = id.Normalized
			}
		}
	}
	return in
}

// DuplicateSuspect is an unordered pair of profiles the sweep believes
// belong to the same person. RenterA always sorts before RenterB.
type DuplicateSuspect struct {
	RenterA    string     `json:"renter_a"`
	RenterB    string     `json:"renter_b"`
	Score      int        `json:"score"`
	Confidence Confidence `json:"confidence"`
	DetectedAt time.Time  `json:"detected_at"`
}

// NewDuplicateSuspect orders the pair so (a,b) and (b,a) produce the same key.
func NewDuplicateSuspect(a, b string, score int, conf Confidence, at time.Time) DuplicateSuspect {
	if b < a {
		a, b = b, a
	}
	return DuplicateSuspect{RenterA: a, RenterB: b, Score: score, Confidence: conf, DetectedAt: at}
}
