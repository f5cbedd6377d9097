package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vorth-network/vigil/screener/setstore"
)

type fakeBanLogs map[string][]BanEntry

func (f fakeBanLogs) FetchBans(ctx context.Context, serverID string) ([]BanEntry, error) {
	bans, ok := f[serverID]
	if !ok {
		return nil, errors.New("missing permissions")
	}
	return bans, nil
}

func TestRebuildMerge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	src := fakeBanLogs{
		"A": {
			{UserID: "1", UserName: "john", Reason: "Vorth alt"},
			{UserID: "2", UserName: "spammer", Reason: "spam links"},
			{UserID: "3", UserName: "noreason"},
			{UserID: "4", UserName: "raccoon", Reason: "raccoon lover"},
		},
		"B": {
			{UserID: "1", UserName: "john_renamed", Reason: "RACC member"},
			{UserID: "5", UserName: "eve", Reason: "racc"},
		},
	}

	out, stats, err := Rebuild(ctx, []string{"A", "gone", "B"}, src, RebuildOptions{})
	require.NoError(t, err)
	assert.Len(out, 2)
	assert.Equal(2, stats.ServersProcessed)
	assert.Equal(1, stats.ServersFailed)
	assert.Equal(3, stats.EntriesMatched)

	john := out["1"]
	assert.Equal([]string{"A", "B"}, john.OriginServers)
	assert.Equal("john_renamed", john.Name)
	assert.Equal("RACC member", john.Reason)
	assert.Equal([]string{"B"}, out["5"].OriginServers)

	// word boundary: "raccoon" does not match
	_, ok := out["4"]
	assert.False(ok)
}

func TestRebuildEmptyAndCustomPattern(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	out, _, err := Rebuild(ctx, nil, fakeBanLogs{}, RebuildOptions{})
	require.NoError(t, err)
	assert.Empty(out)

	src := fakeBanLogs{"A": {{UserID: "9", UserName: "x", Reason: "raid wave"}}}
	out, _, err = Rebuild(ctx, []string{"A"}, src, RebuildOptions{
		ReasonPattern: regexp.MustCompile(`raid`),
		RateLimit:     rate.Limit(100),
	})
	require.NoError(t, err)
	assert.Len(out, 1)
}

func TestRebuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Rebuild(ctx, []string{"A", "B"}, fakeBanLogs{}, RebuildOptions{RateLimit: rate.Limit(0.001)})
	assert.Error(t, err)
}

func TestDirBanLogSource(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "42.json"), []byte(`[
		{"user_id": 1234567890123, "user_name": "john", "reason": "vorth"},
		{"user_id": "77", "user_name": "amy", "reason": "spam"}
	]`), 0o644))

	src := &DirBanLogSource{Dir: dir}
	bans, err := src.FetchBans(ctx, "42")
	require.NoError(t, err)
	assert.Equal([]BanEntry{
		{UserID: "1234567890123", UserName: "john", Reason: "vorth"},
		{UserID: "77", UserName: "amy", Reason: "spam"},
	}, bans)

	_, err = src.FetchBans(ctx, "43")
	assert.Error(err)
	_, err = src.FetchBans(ctx, "../42")
	assert.Error(err)
}

func TestAccess(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	acc := NewAccess(setstore.NewMemSetStore())
	assert.ErrorIs(acc.RequireAuditor(ctx, "7"), ErrNotAuditor)

	added, err := acc.AddAuditor(ctx, "7")
	require.NoError(t, err)
	assert.True(added)
	assert.NoError(acc.RequireAuditor(ctx, "7"))

	added, err = acc.VerifyServer(ctx, "100")
	require.NoError(t, err)
	assert.True(added)
	added, err = acc.VerifyServer(ctx, "100")
	require.NoError(t, err)
	assert.False(added)

	trusted, err := acc.IsTrustedServer(ctx, "100")
	require.NoError(t, err)
	assert.True(trusted)

	servers, err := acc.TrustedServers(ctx)
	require.NoError(t, err)
	assert.Equal([]string{"100"}, servers)

	removed, err := acc.UnverifyServer(ctx, "100")
	require.NoError(t, err)
	assert.True(removed)
	removed, err = acc.RemoveAuditor(ctx, "7")
	require.NoError(t, err)
	assert.True(removed)
	auditors, err := acc.Auditors(ctx)
	require.NoError(t, err)
	assert.Empty(auditors)
}
