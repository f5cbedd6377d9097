package namematch

import (
	"github.com/vorth-network/vigil/screener/registry"
)

// Ratios strictly above this match.
const Threshold = 0.7

type Tier string

const (
	TierExact     Tier = "exact"
	TierSubstring Tier = "substring"
	TierRatio     Tier = "ratio"
)

// Details of why a candidate name matched the corpus.
type Match struct {
	Tier Tier `json:"tier"`
	// identity whose name (or pattern) matched
	IdentityID string `json:"identity_id"`
	// normalized banned name
	Name string `json:"name"`
	// pattern found in the candidate (substring tier)
	Token string  `json:"token,omitempty"`
	Ratio float64 `json:"ratio"`
}

// Finds the first matching tier for candidate: exact name, then literal pattern substring, then similarity ratio above Threshold. Returns nil when nothing matches.
//
// Substring matching is literal: a short pattern matches inside unrelated longer names. Only the given patterns are used for it; a nil set has no patterns.
func FindMatch(candidate string, identities []registry.BannedIdentity, patterns PatternSet) *Match {
	return buildIndex("", identities, patterns).FindMatch(candidate)
}

func IsMatch(candidate string, identities []registry.BannedIdentity, patterns PatternSet) bool {
	return FindMatch(candidate, identities, patterns) != nil
}
