package similarity

import (
	"sort"
	"strings"
)

// soundexCodes maps a-z to American Soundex digits. 0 marks vowels and the
// separators h/w/y, which are handled separately.
var soundexCodes = [26]byte{
	0, 1, 2, 3, 0, 1, 2, 0, 0, 2, 2, 4, 5, // a-m
	5, 0, 1, 2, 6, 2, 3, 0, 1, 0, 2, 0, 2, // n-z
}

// Soundex returns the four character American Soundex code of s, ignoring
// anything that is not an ASCII letter. Input without letters yields "".
func Soundex(s string) string {
	out := make([]byte, 0, 4)
	var last byte
	for _, r := range strings.ToLower(s) {
		if r < 'a' || r > 'z' {
			continue
		}
		code := soundexCodes[r-'a']
		if len(out) == 0 {
			out = append(out, byte(r-'a'+'A'))
			last = code
			continue
		}
		if code == 0 {
			// h and w do not separate equal codes; vowels do.
			if r != 'h' && r != 'w' {
				last = 0
			}
			continue
		}
		if code != last {
			out = append(out, '0'+code)
			if len(out) == 4 {
				break
			}
		}
		last = code
	}
	if len(out) == 0 {
		return ""
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// SoundsLike reports whether both names have the same multiset of per-token
// Soundex codes, e.g. "jon smyth" and "john smith".
func SoundsLike(a, b string) bool {
	ca, cb := tokenCodes(a), tokenCodes(b)
	if len(ca) == 0 || len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

func tokenCodes(s string) []string {
	var codes []string
	for _, t := range strings.Fields(s) {
		if c := Soundex(t); c != "" {
			codes = append(codes, c)
		}
	}
	sort.Strings(codes)
	return codes
}
