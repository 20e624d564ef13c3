// Package normalize canonicalizes raw identifiers, names and locations into
// forms safe for exact comparison and hashing. Every function is idempotent.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"renter-registry/internal/identity"
	"renter-registry/internal/similarity"
	errs "renter-registry/pkg/errors"
)

var countryCodeRe = regexp.MustCompile(`^[1-9][0-9]{0,2}$`)

// Config holds region and provider rules.
type Config struct {
	// DefaultCountryCode is the calling code, digits only, used for local numbers.
	DefaultCountryCode string `yaml:"default_country_code"`

	// DotInsensitiveDomains ignore dots in the local part (strict email only).
	DotInsensitiveDomains []string `yaml:"dot_insensitive_domains"`

	// DomainAliases folds alternate provider domains (strict email only).
	DomainAliases map[string]string `yaml:"domain_aliases"`

	// Honorifics are dropped from either end of a name.
	Honorifics []string `yaml:"honorifics"`
}

// DefaultConfig returns Philippine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCountryCode:    "63",
		DotInsensitiveDomains: []string{"gmail.com"},
		DomainAliases:         map[string]string{"googlemail.com": "gmail.com"},
		Honorifics:            []string{"mr", "mrs", "ms", "dr", "jr", "sr"},
	}
}

// Validate checks the config for values the normalizer cannot work with.
func (c Config) Validate() error {
	if !countryCodeRe.MatchString(c.DefaultCountryCode) {
		return errs.NewValidation("normalize.Config.Validate",
			fmt.Sprintf("default country code %q must be 1-3 digits", c.DefaultCountryCode), nil)
	}
	return nil
}

// Normalizer canonicalizes identifiers. It is immutable and safe for concurrent use.
type Normalizer struct {
	cfg            Config
	dotInsensitive map[string]struct{}
	honorifics     map[string]struct{}
}

// New builds a Normalizer from cfg.
func New(cfg Config) *Normalizer {
	n := &Normalizer{
		cfg:            cfg,
		dotInsensitive: make(map[string]struct{}, len(cfg.DotInsensitiveDomains)),
		honorifics:     make(map[string]struct{}, len(cfg.Honorifics)),
	}
	for _, d := range cfg.DotInsensitiveDomains {
		n.dotInsensitive[strings.ToLower(d)] = struct{}{}
	}
	for _, h := range cfg.Honorifics {
		n.honorifics[strings.ToLower(strings.Trim(h, ". "))] = struct{}{}
	}
	return n
}

// NewDefault returns a Normalizer with DefaultConfig.
func NewDefault() *Normalizer { return New(DefaultConfig()) }

// Config returns a copy of the configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Normalize canonicalizes raw as an identifier of the given kind. It only
// fails for empty input, input with nothing usable, or an unknown kind.
func (n *Normalizer) Normalize(kind identity.IdentifierKind, raw string) (string, error) {
	switch kind {
	case identity.KindPhone:
		return n.Phone(raw)
	case identity.KindEmail:
		return n.Email(raw)
	case identity.KindFacebook:
		return n.FacebookID(raw)
	case identity.KindGovtID:
		return n.GovtID(raw)
	}
	return "", errs.NewNormalization("normalize.Normalize", string(kind), "unknown identifier kind")
}

// Identifier returns raw wrapped with its normalized form.
func (n *Normalizer) Identifier(kind identity.IdentifierKind, raw string) (identity.Identifier, error) {
	v, err := n.Normalize(kind, raw)
	if err != nil {
		return identity.Identifier{}, err
	}
	return identity.Identifier{Kind: kind, Raw: raw, Normalized: v}, nil
}

// Input canonicalizes every field of in. Identifier fields that fail are
// cleared and their errors returned; the rest of the input stays usable.
func (n *Normalizer) Input(in identity.SearchInput) (identity.SearchInput, []error) {
	out := identity.SearchInput{
		Name:          n.Name(in.Name),
		Location:      n.Location(in.Location),
		NameIsGeneric: in.NameIsGeneric,
	}
	var failed []error
	for _, kind := range identity.StrongKinds {
		raw := in.Value(kind)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := n.Normalize(kind, raw)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		switch kind {
		case identity.KindPhone:
			out.Phone = v
		case identity.KindEmail:
			out.Email = v
		case identity.KindFacebook:
			out.Facebook = v
		case identity.KindGovtID:
			out.GovtID = v
		}
	}
	return out, failed
}

// Candidate canonicalizes a stored profile. Values that fail normalization are dropped.
func (n *Normalizer) Candidate(c identity.CandidateData) identity.CandidateData {
	out := identity.CandidateData{
		RenterID: c.RenterID,
		Name:     n.Name(c.Name),
		Location: n.Location(c.Location),
	}
	for _, kind := range identity.StrongKinds {
		for _, raw := range c.Values(kind) {
			if v, err := n.Normalize(kind, raw); err == nil {
				out.Add(kind, v)
			}
		}
	}
	return out
}

// Location lowercases, trims and collapses whitespace. Nothing else.
func (n *Normalizer) Location(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// NameBucket is the coarse lookup key for a name: the Soundex code of the
// last name token, or of the only token.
func (n *Normalizer) NameBucket(raw string) string {
	parts := n.ParseNameParts(raw)
	token := parts.Last
	if token == "" {
		token = parts.First
	}
	return similarity.Soundex(token)
}
