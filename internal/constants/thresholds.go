package constants

// Centralized threshold values used across the application.
// These are not configuration knobs; use pkg/config for env-driven settings.

const (
	// Minimum token count for a name to be considered specific by the store's
	// generic-name hint, independent of its frequency.
	GenericNameMinTokens = 2

	// Names with fewer letters than this are generic to the same hint.
	GenericNameMinLetters = 4

	// Profiles sharing one normalized name before it counts as generic, when
	// the store is built without configuration.
	GenericNameMinCountDefault = 25

	// Upper bound on candidates any single lookup may return.
	MaxCandidateLimit = 500
)
