// Name screening against the banned-identity corpus.
//
// A candidate name matches when it equals a banned name, contains one of the patterns extracted from banned names, or is similar enough (Ratcliff/Obershelp ratio) to a banned name. All comparison happens on normalized (NFC, lowercased) names.
package namematch

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/vorth-network/vigil/screener/registry"
)

// Patterns shorter than this (in runes) are discarded.
const MinPatternLen = 3

var separators = []string{"_", ".", "-", " "}

// Canonical form names are compared in.
func NormalizeName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}

// Set of lowercase name fragments that count as a match when found inside a candidate name.
type PatternSet map[string]struct{}

func NewPatternSet(patterns ...string) PatternSet {
	ps := make(PatternSet, len(patterns))
	for _, p := range patterns {
		ps[p] = struct{}{}
	}
	return ps
}

func (ps PatternSet) Contains(p string) bool {
	_, ok := ps[p]
	return ok
}

func (ps PatternSet) Len() int {
	return len(ps)
}

func (ps PatternSet) Sorted() []string {
	out := make([]string, 0, len(ps))
	for p := range ps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Derives the full pattern set from the names of the given identities. Identities without a name contribute nothing.
func ExtractPatterns(identities []registry.BannedIdentity) PatternSet {
	ps := make(PatternSet)
	for _, bi := range identities {
		if bi.Name == "" {
			continue
		}
		for _, tok := range nameTokens(NormalizeName(bi.Name)) {
			ps[tok] = struct{}{}
		}
	}
	return ps
}

// Fragments of an already normalized name.
//
// Every separator present splits the whole name independently. A name without separators is its own single fragment. If separators are present but no fragment is long enough, the whole name is used instead.
func nameTokens(name string) []string {
	var parts []string
	split := false
	for _, sep := range separators {
		if strings.Contains(name, sep) {
			split = true
			parts = append(parts, strings.Split(name, sep)...)
		}
	}
	if !split {
		parts = []string{name}
	}

	var out []string
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if utf8.RuneCountInString(p) < MinPatternLen || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 && split && utf8.RuneCountInString(name) >= MinPatternLen {
		out = []string{name}
	}
	return out
}
