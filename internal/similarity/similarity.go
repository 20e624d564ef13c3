// Package similarity holds pure string comparison functions for normalized
// names. Every function is symmetric, total, and returns 1.0 for identical
// non-empty input.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// Winkler prefix boost: scale per shared leading rune, capped at maxPrefix runes,
	// applied only when the plain Jaro score clears boostThreshold.
	winklerScale          = 0.1
	winklerMaxPrefix      = 4
	winklerBoostThreshold = 0.7

	// nearTokenThreshold is the Jaro-Winkler score at which two tokens count as
	// the same token in TokenSetSimilarity.
	nearTokenThreshold = 0.88
)

// LevenshteinDistance is the rune-level edit distance with unit costs.
func LevenshteinDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// LevenshteinSimilarity is 1 - distance/max(len). Two empty strings compare as
// 1.0; callers treat empty input as no signal.
func LevenshteinSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// Jaro returns the Jaro similarity of a and b.
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	// Greedy matching depends on argument order; fix the order so the result is symmetric.
	if len(ra) > len(rb) || (len(ra) == len(rb) && a > b) {
		ra, rb = rb, ra
	}

	window := max(len(ra), len(rb))/2 - 1
	if window < 0 {
		window = 0
	}
	matchedA := make([]bool, len(ra))
	matchedB := make([]bool, len(rb))
	matches := 0
	for i := range ra {
		lo := max(0, i-window)
		hi := min(len(rb)-1, i+window)
		for j := lo; j <= hi; j++ {
			if matchedB[j] || ra[i] != rb[j] {
				continue
			}
			matchedA[i], matchedB[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range ra {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-float64(transpositions)/2)/m) / 3
}

// JaroWinkler boosts Jaro for strings that share a leading prefix.
func JaroWinkler(a, b string) float64 {
	j := Jaro(a, b)
	if j < winklerBoostThreshold {
		return j
	}
	ra, rb := []rune(a), []rune(b)
	prefix := 0
	for prefix < winklerMaxPrefix && prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	return j + float64(prefix)*winklerScale*(1-j)
}

// TokenSetSimilarity compares the unordered token sets of a and b. Tokens pair
// up exactly first, then by near-exact Jaro-Winkler; the score is the summed
// pair similarity over the size of the union.
func TokenSetSimilarity(a, b string) float64 {
	ta, tb := uniqueTokens(a), uniqueTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) || (len(ta) == len(tb) && strings.Join(ta, " ") > strings.Join(tb, " ")) {
		ta, tb = tb, ta
	}

	used := make([]bool, len(tb))
	var matched float64
	pairs := 0
	var pending []string
	for _, t := range ta {
		if j := indexUnused(tb, used, t); j >= 0 {
			used[j] = true
			matched++
			pairs++
			continue
		}
		pending = append(pending, t)
	}
	for _, t := range pending {
		best, bestIdx := 0.0, -1
		for j, u := range tb {
			if used[j] {
				continue
			}
			if s := JaroWinkler(t, u); s > best {
				best, bestIdx = s, j
			}
		}
		if bestIdx >= 0 && best >= nearTokenThreshold {
			used[bestIdx] = true
			matched += best
			pairs++
		}
	}
	return matched / float64(len(ta)+len(tb)-pairs)
}

// TokenSortSimilarity sorts tokens before comparing the rejoined strings, so
// "cruz juan" and "juan cruz" compare equal.
func TokenSortSimilarity(a, b string) float64 {
	sa, sb := sortedJoin(a), sortedJoin(b)
	if sa == sb {
		return 1.0
	}
	return math.Max(LevenshteinSimilarity(sa, sb), JaroWinkler(sa, sb))
}

// NameSimilarity is the best of token-set, token-sort and direct Jaro-Winkler.
// An empty side yields 0.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	return max(TokenSetSimilarity(a, b), TokenSortSimilarity(a, b), JaroWinkler(a, b))
}

// AreNamesSimilar gates NameSimilarity on threshold.
func AreNamesSimilar(a, b string, threshold float64) bool {
	return NameSimilarity(a, b) >= threshold
}

// ContainmentRatio is the share of the smaller token set found in the larger.
func ContainmentRatio(a, b string) float64 {
	ta, tb := uniqueTokens(a), uniqueTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	set := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range ta {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

// ContainsSignificant reports whether every significant token (two or more
// runes) of the shorter name appears in the longer one. Initials are ignored.
func ContainsSignificant(a, b string) bool {
	sa, sb := significantTokens(a), significantTokens(b)
	if len(sa) == 0 || len(sb) == 0 {
		return false
	}
	if len(sa) > len(sb) {
		sa, sb = sb, sa
	}
	set := make(map[string]struct{}, len(sb))
	for _, t := range sb {
		set[t] = struct{}{}
	}
	for _, t := range sa {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func uniqueTokens(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	out := fields[:1]
	for _, f := range fields[1:] {
		if f != out[len(out)-1] {
			out = append(out, f)
		}
	}
	return out
}

func significantTokens(s string) []string {
	var out []string
	for _, t := range uniqueTokens(s) {
		if utf8.RuneCountInString(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

func sortedJoin(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func indexUnused(tokens []string, used []bool, t string) int {
	for i, u := range tokens {
		if !used[i] && u == t {
			return i
		}
	}
	return -1
}
