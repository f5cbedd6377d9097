// Cache of name-check verdicts, keyed by corpus version so a reload never serves stale results.
//
// Includes an interface and implementations using redis and in-process memory. The redis implementation lets several vigil processes share verdicts for the same corpus.
package cachestore
