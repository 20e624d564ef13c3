package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"renter-registry/internal/identity"
)

// newFolder strips combining marks. Transformers carry state, so build one per call.
func newFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Name lowercases, strips diacritics and punctuation, collapses whitespace and
// drops honorifics from both ends. Apostrophes and hyphens inside a token survive.
func (n *Normalizer) Name(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(newFolder(), s); err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			return r
		}
		return ' '
	}, s)

	tokens := make([]string, 0, 4)
	for _, t := range strings.Fields(s) {
		if t = strings.Trim(t, "'-"); t != "" {
			tokens = append(tokens, t)
		}
	}
	for len(tokens) > 0 && n.isHonorific(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && n.isHonorific(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func (n *Normalizer) isHonorific(token string) bool {
	_, ok := n.honorifics[token]
	return ok
}

// ParseNameParts tokenizes the normalized name. First is the first token;
// Last is set only when there are at least two tokens.
func (n *Normalizer) ParseNameParts(raw string) identity.NameParts {
	full := n.Name(raw)
	parts := identity.NameParts{NormalizedFull: full}
	if full == "" {
		return parts
	}
	parts.Tokens = strings.Fields(full)
	parts.First = parts.Tokens[0]
	if len(parts.Tokens) > 1 {
		parts.Last = parts.Tokens[len(parts.Tokens)-1]
	}
	return parts
}

// FirstLast returns the first and last name, empty when absent.
func (n *Normalizer) FirstLast(raw string) (first, last string) {
	p := n.ParseNameParts(raw)
	return p.First, p.Last
}
