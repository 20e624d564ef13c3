package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"renter-registry/internal/identity"
	errs "renter-registry/pkg/errors"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// Phone keeps digits and a leading +, then applies the first matching rule:
//
//	+<digits>            kept as is
//	0 + 9..10 digits     trunk 0 replaced by +<country code>
//	<cc> + 9..10 digits  prefixed with +
//	10 digits            prefixed with +<country code>
//
// Anything else comes back as its digit string.
func (n *Normalizer) Phone(raw string) (string, error) {
	const op = "normalize.Phone"
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errs.NewNormalization(op, string(identity.KindPhone), "empty input")
	}
	plus := strings.HasPrefix(strings.TrimLeft(s, " ("), "+")
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return "", errs.NewNormalization(op, string(identity.KindPhone), "no digits")
	}

	cc := n.cfg.DefaultCountryCode
	national := func(d string) bool { return len(d) == 9 || len(d) == 10 }
	switch {
	case plus:
		return "+" + digits, nil
	case cc == "":
		return digits, nil
	case strings.HasPrefix(digits, "0") && national(digits[1:]):
		return "+" + cc + digits[1:], nil
	case strings.HasPrefix(digits, cc) && national(digits[len(cc):]):
		return "+" + digits, nil
	case len(digits) == 10:
		return "+" + cc + digits, nil
	}
	return digits, nil
}

// Email lowercases and trims.
func (n *Normalizer) Email(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", errs.NewNormalization("normalize.Email", string(identity.KindEmail), "empty input")
	}
	return s, nil
}

// EmailStrict also drops +tag sub-addressing, folds provider aliases and
// removes dots for providers that ignore them. For dedup keys only, never display.
func (n *Normalizer) EmailStrict(raw string) (string, error) {
	e, err := n.Email(raw)
	if err != nil {
		return "", err
	}
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return e, nil
	}
	local, domain := e[:at], e[at+1:]
	if alias, ok := n.cfg.DomainAliases[domain]; ok {
		domain = alias
	}
	if i := strings.IndexByte(local, '+'); i > 0 {
		local = local[:i]
	}
	if _, ok := n.dotInsensitive[domain]; ok {
		if folded := strings.ReplaceAll(local, ".", ""); folded != "" {
			local = folded
		}
	}
	return local + "@" + domain, nil
}

var facebookHosts = map[string]struct{}{
	"facebook.com": {},
	"fb.com":       {},
	"fb.me":        {},
}

var facebookSubdomains = []string{"www.", "m.", "mobile.", "web.", "mbasic."}

// FacebookID extracts the lowercase username or numeric id from a bare
// username or a facebook.com / fb.com URL in any of its usual shapes.
func (n *Normalizer) FacebookID(raw string) (string, error) {
	const op = "normalize.FacebookID"
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", errs.NewNormalization(op, string(identity.KindFacebook), "empty input")
	}
	for _, scheme := range []string{"https://", "http://", "//"} {
		s = strings.TrimPrefix(s, scheme)
	}

	host, path := s, ""
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		host, path = s[:i], s[i:]
	}
	if !isFacebookHost(strings.TrimSpace(host)) {
		// bare username, possibly with junk after it
		path = "/" + s
	}

	path, _, _ = strings.Cut(path, "#")
	path, query, _ := strings.Cut(path, "?")
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segs = append(segs, seg)
		}
	}

	var id string
	switch {
	case len(segs) > 0 && segs[0] == "profile.php":
		if q, err := url.ParseQuery(query); err == nil {
			id = q.Get("id")
		}
	case len(segs) >= 3 && segs[0] == "people":
		id = segs[2]
	case len(segs) > 0:
		id = segs[0]
	}
	id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "@"))
	if id == "" {
		return "", errs.NewNormalization(op, string(identity.KindFacebook), "no profile id")
	}
	// Anything that would parse differently on a second pass is not an id.
	if strings.ContainsFunc(id, unicode.IsSpace) || strings.ContainsAny(id, "/?#@") ||
		id == "profile.php" || isFacebookHost(id) {
		return "", errs.NewNormalization(op, string(identity.KindFacebook), "malformed profile id")
	}
	return id, nil
}

// isFacebookHost matches the known hosts with or without a usual subdomain.
func isFacebookHost(host string) bool {
	if _, ok := facebookHosts[host]; ok {
		return true
	}
	for _, sub := range facebookSubdomains {
		if trimmed, ok := strings.CutPrefix(host, sub); ok {
			if _, fb := facebookHosts[trimmed]; fb {
				return true
			}
		}
	}
	return false
}

// FacebookURL returns the canonical https://facebook.com/<id> form.
func (n *Normalizer) FacebookURL(raw string) (string, error) {
	id, err := n.FacebookID(raw)
	if err != nil {
		return "", err
	}
	return "https://facebook.com/" + id, nil
}

// GovtID uppercases and keeps letters and digits only.
func (n *Normalizer) GovtID(raw string) (string, error) {
	const op = "normalize.GovtID"
	if strings.TrimSpace(raw) == "" {
		return "", errs.NewNormalization(op, string(identity.KindGovtID), "empty input")
	}
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, raw)
	if out == "" {
		return "", errs.NewNormalization(op, string(identity.KindGovtID), "no letters or digits")
	}
	return out, nil
}
