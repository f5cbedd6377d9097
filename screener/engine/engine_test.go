package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorth-network/vigil/screener/countstore"
	"github.com/vorth-network/vigil/screener/flagstore"
	"github.com/vorth-network/vigil/screener/namematch"
	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"
)

func TestEvaluateJoinNoMatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	out := eng.EvaluateJoin(ctx, "42", "alice", "100")
	assert.False(out.Matched)
	assert.Equal("no match", out.Summary)
	assert.Empty(out.Actions)

	// policy was created on first sight
	list, err := eng.Policies.List(ctx)
	require.NoError(t, err)
	assert.Len(list, 1)
	assert.Equal(policy.DefaultPolicy("100"), list[0])
}

func TestEvaluateJoinExempt(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	exec := &RecordingExecutor{}
	eng.Executor = exec
	_, err := eng.Policies.SetScreening(ctx, "100", true)
	require.NoError(t, err)
	_, err = eng.Policies.SetAction(ctx, "100", "ban")
	require.NoError(t, err)
	_, err = eng.Policies.AddExemption(ctx, "100", "42")
	require.NoError(t, err)

	out := eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.False(out.Matched)
	assert.Equal("exempt", out.Summary)
	assert.Empty(exec.Calls)

	// exemption is per server
	out = eng.EvaluateJoin(ctx, "42", "John_Doe", "200")
	assert.True(out.Matched)
}

func TestEvaluateJoinScreeningOffNotifiesOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	exec := &RecordingExecutor{}
	eng.Executor = exec
	_, err := eng.Policies.SetAction(ctx, "100", "ban,log")
	require.NoError(t, err)
	_, err = eng.Policies.SetNotificationChannel(ctx, "100", "555")
	require.NoError(t, err)

	out := eng.EvaluateJoin(ctx, "42", "xx_john", "100")
	assert.True(out.Matched)
	assert.Equal(namematch.TierSubstring, out.Match.Tier)
	assert.Equal([]ActionResult{{Action: policy.ActionNotify, Status: StatusApplied}}, out.Actions)
	assert.Empty(exec.Calls)
	assert.Equal("555", out.NotificationChannel)
	assert.Equal("🚨 **Logged potential banned user**: <@42> (`xx_john`)", out.Summary)
}

func TestEvaluateJoinEnforces(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	exec := &RecordingExecutor{}
	eng.Executor = exec
	_, err := eng.Policies.SetScreening(ctx, "100", true)
	require.NoError(t, err)
	_, err = eng.Policies.SetAction(ctx, "100", "log,ban")
	require.NoError(t, err)

	out := eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.True(out.Matched)
	assert.Equal(namematch.TierExact, out.Match.Tier)
	assert.Equal([]string{"ban 100/42"}, exec.Calls)
	assert.Equal([]ActionResult{
		{Action: policy.ActionBan, Status: StatusApplied},
		{Action: policy.ActionNotify, Status: StatusApplied},
	}, out.Actions)
	assert.Equal("🚨 **Banned, logged potential banned user**: <@42> (`John_Doe`)", out.Summary)

	flags, err := eng.Flags.Get(ctx, flagstore.MemberKey("100", "42"))
	require.NoError(t, err)
	assert.Equal([]string{flagstore.FlagNameMatch}, flags)

	st, err := eng.Stats(ctx, "100")
	require.NoError(t, err)
	assert.Equal(1, st.Joins[countstore.PeriodTotal])
	assert.Equal(1, st.Matches[countstore.PeriodTotal])
	assert.Equal(1, st.Identities[countstore.PeriodDay])
}

func TestEvaluateJoinActionFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	eng.Executor = &RecordingExecutor{Fail: map[string]error{
		"ban":    fmt.Errorf("http 403: %w", ErrMissingPermissions),
		"remove": errors.New("gateway timeout"),
	}}
	_, err := eng.Policies.SetScreening(ctx, "100", true)
	require.NoError(t, err)

	_, err = eng.Policies.SetAction(ctx, "100", "ban,log")
	require.NoError(t, err)
	out := eng.EvaluateJoin(ctx, "42", "john_doe", "100")
	assert.Equal(StatusFailed, out.Actions[0].Status)
	assert.Equal("missing permissions", out.Actions[0].Reason)
	// notification still goes out
	assert.Equal(StatusApplied, out.Actions[1].Status)
	assert.Equal("🚨 **Failed to ban (missing permissions), logged potential banned user**: <@42> (`john_doe`)", out.Summary)

	_, err = eng.Policies.SetAction(ctx, "100", "kick")
	require.NoError(t, err)
	out = eng.EvaluateJoin(ctx, "43", "john_doe", "100")
	assert.Equal([]ActionResult{{Action: policy.ActionRemove, Status: StatusFailed, Reason: "gateway timeout"}}, out.Actions)
	assert.Equal("🚨 **Error during kick (gateway timeout) potential banned user**: <@43> (`john_doe`)", out.Summary)
}

func TestEvaluateJoinWithoutExecutor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	_, err := eng.Policies.SetScreening(ctx, "100", true)
	require.NoError(t, err)
	_, err = eng.Policies.SetAction(ctx, "100", "kick,log")
	require.NoError(t, err)

	out := eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.Equal(StatusSkipped, out.Actions[0].Status)
	assert.Equal(policy.ActionRemove, out.Actions[0].Action)
	assert.Equal(StatusApplied, out.Actions[1].Status)
}

func TestEvaluateJoinPolicyPersistFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	store := policy.NewMemStore()
	store.SaveErr = errors.New("read-only")
	eng.Policies = policy.NewManager(store, nil)
	exec := &RecordingExecutor{}
	eng.Executor = exec

	out := eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.True(out.Matched)
	assert.Equal([]ActionResult{{Action: policy.ActionNotify, Status: StatusApplied}}, out.Actions)
	assert.Empty(exec.Calls)
}

func TestSummarizeNoActions(t *testing.T) {
	assert.Equal(t, "⚠️ **Potential banned user detected**: <@1> (`x`)", Summarize("1", "x", nil))
}

func TestProcessJoin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})

	out, err := eng.ProcessJoin(ctx, JoinEvent{MemberID: "42", MemberName: "John_Doe", ServerID: "100", IsAutomated: true})
	assert.NoError(err)
	assert.Nil(out)

	out, err = eng.ProcessJoin(ctx, JoinEvent{MemberID: "42", MemberName: "John_Doe", ServerID: "100"})
	assert.NoError(err)
	assert.True(out.Matched)

	_, err = eng.ProcessJoin(ctx, JoinEvent{MemberName: "John_Doe", ServerID: "100"})
	assert.Error(err)

	// panics are recovered
	eng.Policies = nil
	out, err = eng.ProcessJoin(ctx, JoinEvent{MemberID: "42", MemberName: "x", ServerID: "100"})
	assert.Error(err)
	assert.Nil(out)
}

type failingSource struct{}

func (failingSource) LoadIdentities(ctx context.Context) ([]registry.BannedIdentity, error) {
	return nil, fmt.Errorf("%w: gone", registry.ErrCorpusUnavailable)
}

func TestReloadCorpus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe", "2": ""})
	idx := eng.Corpus()
	assert.Equal(1, idx.Len())
	assert.Equal(1, idx.Skipped)
	assert.True(eng.CheckName(ctx, "john"))
	assert.False(eng.CheckName(ctx, "alice"))

	// unavailable source degrades to an empty corpus
	eng.Source = failingSource{}
	idx = eng.ReloadCorpus(ctx)
	assert.Equal(0, idx.Len())
	assert.Same(idx, eng.Corpus())
	assert.False(eng.CheckName(ctx, "john"))
}

func TestCheckUsesVersionedCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	m := eng.Check(ctx, "jhon_doe")
	assert.NotNil(m)

	// cached under the current version
	v, ok, err := eng.Verdicts.Get(ctx, eng.Corpus().Version, "jhon_doe")
	assert.NoError(err)
	assert.True(ok)
	assert.True(v.Matched)

	// a new corpus version does not see the old verdict
	reg := eng.Source.(*registry.Registry)
	_, err = reg.Remove(ctx, "1")
	require.NoError(t, err)
	eng.ReloadCorpus(ctx)
	assert.False(eng.CheckName(ctx, "jhon_doe"))
}

func TestEngineWithoutOptionalStores(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := registry.NewMemStore()
	store.Idents["1"] = registry.BannedIdentity{ID: "1", Name: "raider"}
	eng := &Engine{
		Logger:   slog.Default(),
		Source:   registry.NewRegistry(store, nil),
		Policies: policy.NewManager(policy.NewMemStore(), nil),
	}
	assert.Equal(0, eng.Corpus().Len())
	eng.ReloadCorpus(ctx)

	out := eng.EvaluateJoin(ctx, "42", "raider", "1")
	assert.True(out.Matched)
	st, err := eng.Stats(ctx, "1")
	require.NoError(t, err)
	assert.Empty(st.Joins)
}

func TestEvaluateJoinMemberFlags(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})

	flags, err := eng.MemberFlags(ctx, "100", "42")
	require.NoError(t, err)
	assert.Empty(flags)

	out := eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.True(out.Matched)
	assert.False(out.PreviouslyFlagged)

	flags, err = eng.MemberFlags(ctx, "100", "42")
	require.NoError(t, err)
	assert.Equal([]string{flagstore.FlagNameMatch}, flags)

	// rejoin after a kick
	out = eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.True(out.PreviouslyFlagged)

	// flags are per server
	out = eng.EvaluateJoin(ctx, "42", "John_Doe", "200")
	assert.False(out.PreviouslyFlagged)

	require.NoError(t, eng.ClearMemberFlags(ctx, "100", "42"))
	flags, err = eng.MemberFlags(ctx, "100", "42")
	require.NoError(t, err)
	assert.Empty(flags)
	out = eng.EvaluateJoin(ctx, "42", "John_Doe", "100")
	assert.False(out.PreviouslyFlagged)

	noFlags := &Engine{
		Logger:   slog.Default(),
		Source:   eng.Source,
		Policies: eng.Policies,
	}
	flags, err = noFlags.MemberFlags(ctx, "100", "42")
	require.NoError(t, err)
	assert.Empty(flags)
	assert.NoError(noFlags.ClearMemberFlags(ctx, "100", "42"))
}

func TestOutcomeEncodesEmptyActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture(map[string]string{"1": "John_Doe"})
	_, err := eng.Policies.AddExemption(ctx, "100", "7")
	require.NoError(t, err)

	for _, out := range []*Outcome{
		eng.EvaluateJoin(ctx, "7", "John_Doe", "100"),
		eng.EvaluateJoin(ctx, "42", "alice", "100"),
	} {
		assert.NotNil(out.Actions)
		b, err := json.Marshal(out)
		require.NoError(t, err)
		assert.Contains(string(b), `"actions":[]`, out.Summary)
	}
}
