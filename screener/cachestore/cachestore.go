package cachestore

import (
	"context"

	"github.com/vorth-network/vigil/screener/namematch"
)

// Result of checking a name against one corpus version.
type Verdict struct {
	Matched bool             `json:"matched" msgpack:"matched"`
	Match   *namematch.Match `json:"match,omitempty" msgpack:"match,omitempty"`
}

type VerdictCache interface {
	// returns false on a cache miss
	Get(ctx context.Context, version, name string) (Verdict, bool, error)
	Set(ctx context.Context, version, name string, v Verdict) error
	Purge(ctx context.Context, version, name string) error
}

func verdictKey(version, name string) string {
	return version + "/" + name
}
