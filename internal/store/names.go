package store

import (
	"strings"
	"unicode"

	"renter-registry/internal/constants"
)

// tooShortToIdentify reports names that are generic regardless of how many
// profiles share them: single tokens and names with very few letters.
func tooShortToIdentify(normalizedName string) bool {
	if len(strings.Fields(normalizedName)) < constants.GenericNameMinTokens {
		return true
	}
	letters := 0
	for _, r := range normalizedName {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < constants.GenericNameMinLetters
}
