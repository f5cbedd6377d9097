// Join screening against a shared registry of banned identities.
//
// This package (`github.com/vorth-network/vigil/screener`) ties together the pieces a moderation bot needs to catch returning bad actors: the curated registry of banned identities (`screener/registry`), name matching against that corpus (`screener/namematch`), per-server policies describing what to do on a match (`screener/policy`), and the engine that evaluates joins and records flags and counters (`screener/engine`).
//
// See `cmd/vigil` for a daemon and admin CLI built on this package.
package screener
