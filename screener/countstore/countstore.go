// Per-server screening counters, bucketed by all-time, day and hour.
//
// Includes an interface and implementations using redis and in-process memory.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

var Periods = []string{PeriodTotal, PeriodDay, PeriodHour}

// Counter names used by the screening engine.
const (
	// members screened on join
	CounterJoin = "screen/join"
	// screened members that matched the corpus
	CounterMatch = "screen/match"
	// distinct banned identities matched
	CounterIdentity = "screen/identity"
)

type CountStore interface {
	GetCount(ctx context.Context, name, serverID, period string) (int, error)
	// increments the counter in every period
	Increment(ctx context.Context, name, serverID string) error
	GetCountDistinct(ctx context.Context, name, serverID, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, serverID, val string) error
}

func periodBucket(name, serverID, period string, now time.Time) string {
	now = now.UTC()
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, serverID)
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%s", name, serverID, now.Format(time.DateOnly))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/%s", name, serverID, now.Format("2006-01-02T15"))
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, serverID)
	}
}
