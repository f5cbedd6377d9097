// Decision engine for join screening: matches a new member's name against the current corpus snapshot, applies the server's policy, and reports the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vorth-network/vigil/screener/cachestore"
	"github.com/vorth-network/vigil/screener/countstore"
	"github.com/vorth-network/vigil/screener/flagstore"
	"github.com/vorth-network/vigil/screener/namematch"
	"github.com/vorth-network/vigil/screener/policy"
)

var tracer = otel.Tracer("engine")

// Runtime for screening joins and recording the results.
//
// Logger, Source and Policies are required. Executor, Flags, Counters and Verdicts are optional: without an Executor enforcement actions are skipped, and the others are simply not recorded or consulted. The corpus is empty until the first ReloadCorpus.
type Engine struct {
	Logger   *slog.Logger
	Source   CorpusSource
	Policies *policy.Manager
	Executor Executor
	Flags    flagstore.FlagStore
	Counters countstore.CountStore
	Verdicts cachestore.VerdictCache

	index    atomic.Pointer[namematch.Index]
	reloadMu sync.Mutex
}

// A member joining a server, as delivered by the chat gateway.
type JoinEvent struct {
	MemberID    string `json:"member_id"`
	MemberName  string `json:"member_name"`
	ServerID    string `json:"server_id"`
	IsAutomated bool   `json:"is_automated"`
}

// Current corpus snapshot.
func (eng *Engine) Corpus() *namematch.Index {
	if idx := eng.index.Load(); idx != nil {
		return idx
	}
	return namematch.EmptyIndex()
}

// Rebuilds the corpus snapshot from the source and swaps it in.
//
// If the source can not be read, the engine keeps screening with an empty corpus; the failure is logged, not returned.
func (eng *Engine) ReloadCorpus(ctx context.Context) *namematch.Index {
	ctx, span := tracer.Start(ctx, "ReloadCorpus")
	defer span.End()

	eng.reloadMu.Lock()
	defer eng.reloadMu.Unlock()

	idents, err := eng.Source.LoadIdentities(ctx)
	if err != nil {
		eng.Logger.Warn("ban registry unavailable, screening with empty corpus", "err", err)
		corpusReloadCount.WithLabelValues("degraded").Inc()
		idents = nil
	} else {
		corpusReloadCount.WithLabelValues("ok").Inc()
	}
	for _, bi := range idents {
		if bi.Name == "" {
			eng.Logger.Warn("skipping registry entry without a name", "id", bi.ID)
		}
	}

	idx := namematch.NewIndex("", idents)
	eng.index.Store(idx)

	corpusIdentities.Set(float64(idx.Len()))
	corpusPatterns.Set(float64(idx.Patterns.Len()))
	span.SetAttributes(attribute.Int("identities", idx.Len()), attribute.String("version", idx.Version))
	eng.Logger.Info("corpus loaded", "identities", idx.Len(), "patterns", idx.Patterns.Len(), "skipped", idx.Skipped, "version", idx.Version)
	return idx
}

// Reports whether name matches the current corpus.
func (eng *Engine) CheckName(ctx context.Context, name string) bool {
	return eng.Check(ctx, name) != nil
}

// Match details for name against the current corpus, or nil. Results are cached per corpus version when a verdict cache is configured.
func (eng *Engine) Check(ctx context.Context, name string) *namematch.Match {
	return eng.check(ctx, eng.Corpus(), name)
}

func (eng *Engine) check(ctx context.Context, idx *namematch.Index, name string) *namematch.Match {
	key := namematch.NormalizeName(name)
	if eng.Verdicts != nil {
		v, ok, err := eng.Verdicts.Get(ctx, idx.Version, key)
		if err != nil {
			eng.Logger.Warn("verdict cache read failed", "err", err)
		} else if ok {
			verdictCacheCount.WithLabelValues("hit").Inc()
			return v.Match
		}
		verdictCacheCount.WithLabelValues("miss").Inc()
	}

	m := idx.FindMatch(name)
	if m != nil {
		nameCheckCount.WithLabelValues(string(m.Tier)).Inc()
	} else {
		nameCheckCount.WithLabelValues("none").Inc()
	}

	if eng.Verdicts != nil {
		if err := eng.Verdicts.Set(ctx, idx.Version, key, cachestore.Verdict{Matched: m != nil, Match: m}); err != nil {
			eng.Logger.Warn("verdict cache write failed", "err", err)
		}
	}
	return m
}

// Screens a member who joined a server and carries out the server's policy on a match.
//
// Never fails: store and executor errors are logged or recorded in the returned Outcome.
func (eng *Engine) EvaluateJoin(ctx context.Context, memberID, memberName, serverID string) *Outcome {
	ctx, span := tracer.Start(ctx, "EvaluateJoin")
	defer span.End()
	span.SetAttributes(attribute.String("server", serverID), attribute.String("member", memberID))

	logger := eng.Logger.With("server", serverID, "member", memberID)
	out := &Outcome{
		ServerID:   serverID,
		MemberID:   memberID,
		MemberName: memberName,
		Actions:    []ActionResult{},
	}

	p, err := eng.Policies.Get(ctx, serverID)
	if err != nil {
		logger.Warn("failed to persist server policy, using defaults", "err", err)
	}
	out.NotificationChannel = p.NotificationChannel

	if p.IsExempt(memberID) {
		logger.Debug("member exempt from screening")
		out.Summary = "exempt"
		return out
	}

	eng.increment(ctx, logger, countstore.CounterJoin, serverID)

	m := eng.check(ctx, eng.Corpus(), memberName)
	if m == nil {
		out.Summary = "no match"
		return out
	}
	out.Matched = true
	out.Match = m
	span.SetAttributes(attribute.String("tier", string(m.Tier)))

	actions := p.EffectiveActions()
	logger.Info("member matched ban registry", "name", memberName, "tier", m.Tier, "identity", m.IdentityID, "actions", actions.String(), "screening", p.ScreeningEnabled)

	for _, a := range actions.Actions() {
		res := eng.execute(ctx, a, serverID, memberID)
		if res.Status == StatusFailed {
			logger.Warn("match action failed", "action", a, "reason", res.Reason)
		}
		actionCount.WithLabelValues(a.String(), string(res.Status)).Inc()
		out.Actions = append(out.Actions, res)
	}

	if eng.Flags != nil {
		key := flagstore.MemberKey(serverID, memberID)
		if prev, err := eng.Flags.Get(ctx, key); err != nil {
			logger.Warn("failed to read member flags", "err", err)
		} else {
			out.PreviouslyFlagged = slices.Contains(prev, flagstore.FlagNameMatch)
		}
		if err := eng.Flags.Add(ctx, key, []string{flagstore.FlagNameMatch}); err != nil {
			logger.Warn("failed to record member flag", "err", err)
		}
	}
	eng.increment(ctx, logger, countstore.CounterMatch, serverID)
	if eng.Counters != nil && m.IdentityID != "" {
		if err := eng.Counters.IncrementDistinct(ctx, countstore.CounterIdentity, serverID, m.IdentityID); err != nil {
			logger.Warn("failed to increment counter", "counter", countstore.CounterIdentity, "err", err)
		}
	}

	out.Summary = Summarize(memberID, memberName, out.Actions)
	return out
}

func (eng *Engine) execute(ctx context.Context, a policy.Action, serverID, memberID string) ActionResult {
	res := ActionResult{Action: a, Status: StatusApplied}

	var err error
	switch a {
	case policy.ActionNotify:
		// delivered by the caller, using the outcome summary
		return res
	case policy.ActionBan:
		if eng.Executor == nil {
			return ActionResult{Action: a, Status: StatusSkipped, Reason: "no executor"}
		}
		err = eng.Executor.Ban(ctx, serverID, memberID, ActionReason)
	case policy.ActionRemove:
		if eng.Executor == nil {
			return ActionResult{Action: a, Status: StatusSkipped, Reason: "no executor"}
		}
		err = eng.Executor.Remove(ctx, serverID, memberID, ActionReason)
	default:
		return ActionResult{Action: a, Status: StatusSkipped, Reason: "unsupported action"}
	}

	if errors.Is(err, ErrMissingPermissions) {
		res.Status = StatusFailed
		res.Reason = ErrMissingPermissions.Error()
	} else if err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
	}
	return res
}

func (eng *Engine) increment(ctx context.Context, logger *slog.Logger, counter, serverID string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, counter, serverID); err != nil {
		logger.Warn("failed to increment counter", "counter", counter, "err", err)
	}
}

// Screens a join event from the gateway. Automated (bot) accounts are dropped, returning a nil Outcome.
func (eng *Engine) ProcessJoin(ctx context.Context, evt JoinEvent) (out *Outcome, err error) {
	// similar to an HTTP server, recover any panics from screening
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("join screening exception", "err", r, "server", evt.ServerID, "member", evt.MemberID)
			joinProcessCount.WithLabelValues("error").Inc()
			out = nil
			err = fmt.Errorf("screening join of %s in %s: panic: %v", evt.MemberID, evt.ServerID, r)
		}
	}()

	if evt.ServerID == "" || evt.MemberID == "" {
		joinProcessCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("join event missing server or member id")
	}
	if evt.IsAutomated {
		joinProcessCount.WithLabelValues("automated").Inc()
		return nil, nil
	}

	start := time.Now()
	defer func() {
		joinProcessDuration.Observe(time.Since(start).Seconds())
	}()

	out = eng.EvaluateJoin(ctx, evt.MemberID, evt.MemberName, evt.ServerID)
	switch {
	case out.Matched:
		joinProcessCount.WithLabelValues("match").Inc()
	case out.Summary == "exempt":
		joinProcessCount.WithLabelValues("exempt").Inc()
	default:
		joinProcessCount.WithLabelValues("no_match").Inc()
	}
	return out, nil
}

// Flags recorded for a member of a server, sorted. Empty when no flag store is configured.
func (eng *Engine) MemberFlags(ctx context.Context, serverID, memberID string) ([]string, error) {
	if eng.Flags == nil {
		return []string{}, nil
	}
	return eng.Flags.Get(ctx, flagstore.MemberKey(serverID, memberID))
}

// Clears a member's flags, eg after a moderator reviewed a false positive. Clearing flags that are not set is not an error.
func (eng *Engine) ClearMemberFlags(ctx context.Context, serverID, memberID string) error {
	if eng.Flags == nil {
		return nil
	}
	return eng.Flags.Remove(ctx, flagstore.MemberKey(serverID, memberID), []string{flagstore.FlagNameMatch})
}

// Screening counters for a server.
type Stats struct {
	ServerID string `json:"server_id"`
	// keyed by period
	Joins   map[string]int `json:"joins"`
	Matches map[string]int `json:"matches"`
	// distinct banned identities matched, keyed by period
	Identities map[string]int `json:"identities"`
}

func (eng *Engine) Stats(ctx context.Context, serverID string) (*Stats, error) {
	st := &Stats{
		ServerID:   serverID,
		Joins:      make(map[string]int),
		Matches:    make(map[string]int),
		Identities: make(map[string]int),
	}
	if eng.Counters == nil {
		return st, nil
	}
	for _, period := range countstore.Periods {
		joins, err := eng.Counters.GetCount(ctx, countstore.CounterJoin, serverID, period)
		if err != nil {
			return nil, err
		}
		matches, err := eng.Counters.GetCount(ctx, countstore.CounterMatch, serverID, period)
		if err != nil {
			return nil, err
		}
		idents, err := eng.Counters.GetCountDistinct(ctx, countstore.CounterIdentity, serverID, period)
		if err != nil {
			return nil, err
		}
		st.Joins[period] = joins
		st.Matches[period] = matches
		st.Identities[period] = idents
	}
	return st, nil
}
