package namematch

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/vorth-network/vigil/screener/registry"
)

// Immutable, fully prepared snapshot of the corpus. Safe for concurrent use.
type Index struct {
	// fingerprint of the identities the index was built from
	Version string
	// usable identities (those with a name), sorted by ID
	Identities []registry.BannedIdentity
	// distinct normalized names, sorted
	Names    []string
	Patterns PatternSet
	BuiltAt  time.Time
	// identities left out for having no name
	Skipped int

	entries        []indexEntry
	exact          map[string]string
	sortedPatterns []string
	owners         map[string]string
}

type indexEntry struct {
	id      string
	name    string
	matcher *seqMatcher
}

// Builds an index over identities, with patterns extracted from their names. An empty version is replaced by the identities' Fingerprint.
func NewIndex(version string, identities []registry.BannedIdentity) *Index {
	return buildIndex(version, identities, ExtractPatterns(identities))
}

// Index with no identities.
func EmptyIndex() *Index {
	return NewIndex("", nil)
}

// Stable digest of the identity IDs and names, independent of order.
func Fingerprint(identities []registry.BannedIdentity) string {
	keys := make([]string, 0, len(identities))
	for _, bi := range identities {
		keys = append(keys, bi.ID+"\x00"+bi.Name)
	}
	slices.Sort(keys)
	h := murmur3.New128()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// patterns are used as given; nil is an empty set
func buildIndex(version string, identities []registry.BannedIdentity, patterns PatternSet) *Index {
	usable := make([]registry.BannedIdentity, 0, len(identities))
	skipped := 0
	for _, bi := range identities {
		if bi.Name == "" {
			skipped++
			continue
		}
		usable = append(usable, bi)
	}
	slices.SortFunc(usable, func(a, b registry.BannedIdentity) int {
		return strings.Compare(a.ID, b.ID)
	})

	if version == "" {
		version = Fingerprint(usable)
	}
	if patterns == nil {
		patterns = NewPatternSet()
	}

	idx := &Index{
		Version:        version,
		Identities:     usable,
		Patterns:       patterns,
		BuiltAt:        time.Now(),
		Skipped:        skipped,
		entries:        make([]indexEntry, 0, len(usable)),
		exact:          make(map[string]string, len(usable)),
		sortedPatterns: patterns.Sorted(),
		owners:         make(map[string]string),
	}
	for _, bi := range usable {
		name := NormalizeName(bi.Name)
		if _, ok := idx.exact[name]; !ok {
			idx.exact[name] = bi.ID
			idx.Names = append(idx.Names, name)
		}
		idx.entries = append(idx.entries, indexEntry{
			id:      bi.ID,
			name:    name,
			matcher: newSeqMatcher(name),
		})
		for _, tok := range nameTokens(name) {
			if _, ok := idx.owners[tok]; !ok {
				idx.owners[tok] = bi.ID
			}
		}
	}
	slices.Sort(idx.Names)
	return idx
}

func (idx *Index) Len() int {
	return len(idx.Identities)
}

func (idx *Index) IsMatch(candidate string) bool {
	return idx.FindMatch(candidate) != nil
}

// Finds the first matching tier for candidate against the snapshot; nil when nothing matches.
//
// Patterns are scanned in sorted order. For the ratio tier, the most similar name is reported.
func (idx *Index) FindMatch(candidate string) *Match {
	name := NormalizeName(candidate)

	if id, ok := idx.exact[name]; ok {
		return &Match{Tier: TierExact, IdentityID: id, Name: name, Ratio: 1.0}
	}

	for _, p := range idx.sortedPatterns {
		if strings.Contains(name, p) {
			m := &Match{Tier: TierSubstring, Token: p, IdentityID: idx.owners[p]}
			if bi, ok := idx.identity(m.IdentityID); ok {
				m.Name = NormalizeName(bi.Name)
			}
			return m
		}
	}

	runes := []rune(name)
	var best *Match
	for _, e := range idx.entries {
		if realQuickRatio(len(runes), len(e.matcher.b)) <= Threshold {
			continue
		}
		r := e.matcher.ratio(runes)
		if r > Threshold && (best == nil || r > best.Ratio) {
			best = &Match{Tier: TierRatio, IdentityID: e.id, Name: e.name, Ratio: r}
		}
	}
	return best
}

func (idx *Index) identity(id string) (registry.BannedIdentity, bool) {
	i, ok := slices.BinarySearchFunc(idx.Identities, id, func(bi registry.BannedIdentity, id string) int {
		return strings.Compare(bi.ID, id)
	})
	if !ok {
		return registry.BannedIdentity{}, false
	}
	return idx.Identities[i], true
}
