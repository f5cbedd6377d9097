package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestFileStoreLegacyLayout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p := filepath.Join(t.TempDir(), "global_bans.json")
	legacy := `{"bans": {
		"111": {"name": "John_Doe", "reason": "vorth raid", "servers": [900000000000000001, "42"]},
		"222": {"name": "alice", "reason": "racc", "servers": []},
		"333": "not an object"
	}}`
	require.NoError(t, os.WriteFile(p, []byte(legacy), 0o644))

	fs := NewFileStore(p, nil)
	idents, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Len(idents, 2)
	assert.Equal([]string{"900000000000000001", "42"}, idents["111"].OriginServers)
	assert.Equal("111", idents["111"].ID)

	require.NoError(t, fs.Save(ctx, idents))
	again, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal([]string{"42", "900000000000000001"}, again["111"].OriginServers)
	assert.Equal("alice", again["222"].Name)
}

func TestFileStoreUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewFileStore(filepath.Join(dir, "nope.json"), nil).Load(ctx)
	assert.ErrorIs(err, ErrCorpusUnavailable)

	p := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(p, []byte("{bans"), 0o644))
	_, err = NewFileStore(p, nil).Load(ctx)
	assert.ErrorIs(err, ErrCorpusUnavailable)
}

func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestGormStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	gs, err := NewGormStore(testDB(t))
	require.NoError(t, err)

	idents, err := gs.Load(ctx)
	require.NoError(t, err)
	assert.Empty(idents)

	require.NoError(t, gs.Save(ctx, map[string]BannedIdentity{
		"1": {Name: "alice", Reason: "spam", OriginServers: []string{"10", "11"}},
		"2": {Name: "bob", Reason: "raid"},
	}))
	idents, err = gs.Load(ctx)
	require.NoError(t, err)
	assert.Len(idents, 2)
	assert.Equal([]string{"10", "11"}, idents["1"].OriginServers)
	assert.Equal([]string{}, idents["2"].OriginServers)

	// upsert plus removal of ids no longer present
	require.NoError(t, gs.Save(ctx, map[string]BannedIdentity{
		"1": {Name: "alice2", Reason: "spam"},
	}))
	idents, err = gs.Load(ctx)
	require.NoError(t, err)
	assert.Len(idents, 1)
	assert.Equal("alice2", idents["1"].Name)

	// server ids are opaque; a comma is not a separator
	require.NoError(t, gs.Save(ctx, map[string]BannedIdentity{
		"1": {Name: "alice", OriginServers: []string{"10,11", "12"}},
	}))
	idents, err = gs.Load(ctx)
	require.NoError(t, err)
	assert.Equal([]string{"10,11", "12"}, idents["1"].OriginServers)

	require.NoError(t, gs.Save(ctx, map[string]BannedIdentity{}))
	idents, err = gs.Load(ctx)
	require.NoError(t, err)
	assert.Empty(idents)
}

func TestRegistryOverGormStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	gs, err := NewGormStore(testDB(t))
	require.NoError(t, err)
	reg := NewRegistry(gs, nil)
	_, err = reg.Add(ctx, "5", "carol", "vorth")
	require.NoError(t, err)

	other := NewRegistry(gs, nil)
	require.NoError(t, other.Load(ctx))
	bi, ok := other.Get("5")
	assert.True(ok)
	assert.Equal("carol", bi.Name)
}
