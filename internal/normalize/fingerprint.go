package normalize

import (
	"crypto/sha256"
	"encoding/hex"

	"renter-registry/internal/identity"
	errs "renter-registry/pkg/errors"
)

// fingerprintVersion prefixes the hashed payload so a future change in the
// recipe never collides with stored keys.
const fingerprintVersion = "v1"

// Fingerprint hashes the strongest identifier (GOVT_ID > PHONE > EMAIL >
// FACEBOOK) together with the normalized name into a hex sha256 digest.
// Emails use the strict form. Within one kind the smallest value wins, so
// identifier order does not matter. It fails only when there is neither a
// usable identifier nor a name.
func (n *Normalizer) Fingerprint(ids []identity.Identifier, name string) (string, error) {
	var best identity.Identifier
	found := false
	for _, id := range ids {
		v := id.Normalized
		if v == "" {
			v = id.Raw
		}
		v, err := n.Normalize(id.Kind, v)
		if err != nil {
			continue
		}
		if id.Kind == identity.KindEmail {
			if strict, err := n.EmailStrict(v); err == nil {
				v = strict
			}
		}
		p, bp := id.Kind.Priority(), best.Kind.Priority()
		if !found || p > bp || (p == bp && v < best.Normalized) {
			best = identity.Identifier{Kind: id.Kind, Raw: id.Raw, Normalized: v}
			found = true
		}
	}

	nm := n.Name(name)
	if !found && nm == "" {
		return "", errs.NewNormalization("normalize.Fingerprint", "", "no identifier or name")
	}

	h := sha256.New()
	h.Write([]byte(fingerprintVersion))
	h.Write([]byte{'|'})
	if found {
		h.Write([]byte(best.Kind))
		h.Write([]byte{':'})
		h.Write([]byte(best.Normalized))
	}
	h.Write([]byte{'|'})
	h.Write([]byte(nm))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// InputIdentifiers lists the identifiers present in a normalized input.
func InputIdentifiers(in identity.SearchInput) []identity.Identifier {
	var out []identity.Identifier
	for _, kind := range identity.StrongKinds {
		if v := in.Value(kind); v != "" {
			out = append(out, identity.Identifier{Kind: kind, Raw: v, Normalized: v})
		}
	}
	return out
}
