// Package identity holds the value types shared by the matching engine.
// Everything here is computed per call and never mutated after construction.
package identity

// IdentifierKind is the type of a contact or identity value.
type IdentifierKind string

const (
	KindPhone    IdentifierKind = "PHONE"
	KindEmail    IdentifierKind = "EMAIL"
	KindFacebook IdentifierKind = "FACEBOOK"
	KindGovtID   IdentifierKind = "GOVT_ID"
)

// StrongKinds lists identifier kinds in fingerprint priority order.
var StrongKinds = []IdentifierKind{KindGovtID, KindPhone, KindEmail, KindFacebook}

// Priority ranks kinds for fingerprinting; higher wins. Unknown kinds rank 0.
func (k IdentifierKind) Priority() int {
	switch k {
	case KindGovtID:
		return 4
	case KindPhone:
		return 3
	case KindEmail:
		return 2
	case KindFacebook:
		return 1
	}
	return 0
}

func (k IdentifierKind) Valid() bool { return k.Priority() > 0 }

// ExactSignal returns the signal emitted when two values of this kind are equal.
func (k IdentifierKind) ExactSignal() SignalType {
	switch k {
	case KindPhone:
		return SignalPhoneExact
	case KindEmail:
		return SignalEmailExact
	case KindFacebook:
		return SignalFacebookExact
	case KindGovtID:
		return SignalGovtIDExact
	}
	return ""
}

// Identifier is a typed raw value together with its canonical form.
type Identifier struct {
	Kind       IdentifierKind `json:"kind"`
	Raw        string         `json:"raw"`
	Normalized string         `json:"normalized"`
}

// NameParts is the tokenized form of a normalized name.
type NameParts struct {
	NormalizedFull string   `json:"normalized_full"`
	Tokens         []string `json:"tokens"`
	First          string   `json:"first"`
	Last           string   `json:"last"`
}

// SearchInput is a partial identity. Any field may be empty.
type SearchInput struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Facebook string `json:"facebook,omitempty"`
	GovtID   string `json:"govt_id,omitempty"` // only set by verification flows
	Location string `json:"location,omitempty"`

	// NameIsGeneric is the caller's hint that Name is common enough that a
	// name-only match carries little information.
	NameIsGeneric bool `json:"name_is_generic,omitempty"`
}

// IsEmpty reports whether no field carries data.
func (in SearchInput) IsEmpty() bool {
	for _, v := range []string{in.Name, in.Phone, in.Email, in.Facebook, in.GovtID, in.Location} {
		if v != "" {
			return false
		}
	}
	return true
}

// Value returns the raw input for an identifier kind.
func (in SearchInput) Value(kind IdentifierKind) string {
	switch kind {
	case KindPhone:
		return in.Phone
	case KindEmail:
		return in.Email
	case KindFacebook:
		return in.Facebook
	case KindGovtID:
		return in.GovtID
	}
	return ""
}

// CandidateData is one stored renter profile's comparable fields.
type CandidateData struct {
	RenterID    string   `json:"renter_id"`
	Phones      []string `json:"phones,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	FacebookIDs []string `json:"facebook_ids,omitempty"`
	GovtIDs     []string `json:"govt_ids,omitempty"`
	Name        string   `json:"name,omitempty"`
	Location    string   `json:"location,omitempty"`
}

// Values returns the candidate's identifiers of one kind.
func (c CandidateData) Values(kind IdentifierKind) []string {
	switch kind {
	case KindPhone:
		return c.Phones
	case KindEmail:
		return c.Emails
	case KindFacebook:
		return c.FacebookIDs
	case KindGovtID:
		return c.GovtIDs
	}
	return nil
}

// Add appends an identifier value of the given kind, skipping duplicates.
func (c *CandidateData) Add(kind IdentifierKind, value string) {
	if value == "" {
		return
	}
	var dst *[]string
	switch kind {
	case KindPhone:
		dst = &c.Phones
	case KindEmail:
		dst = &c.Emails
	case KindFacebook:
		dst = &c.FacebookIDs
	case KindGovtID:
		dst = &c.GovtIDs
	default:
		return
	}
	for _, v := range *dst {
		if v == value {
			return
		}
	}
	*dst = append(*dst, value)
}

// Identifiers flattens the candidate's identifiers in kind priority order.
func (c CandidateData) Identifiers() []Identifier {
	var out []Identifier
	for _, k := range StrongKinds {
		for _, v := range c.Values(k) {
			out = append(out, Identifier{Kind: k, Raw: v, Normalized: v})
		}
	}
	return out
}
