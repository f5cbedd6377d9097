package cliutil

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDatabaseSqlite(t *testing.T) {
	assert := assert.New(t)

	p := filepath.Join(t.TempDir(), "nested", "vigil.sqlite")
	db, err := SetupDatabase("sqlite://"+p, 10, nil)
	require.NoError(t, err)

	var n int
	assert.NoError(db.Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(1, n)

	sqldb, err := db.DB()
	require.NoError(t, err)
	assert.Equal(1, sqldb.Stats().MaxOpenConnections)
	assert.NoError(sqldb.Close())
}

func TestSetupDatabaseUnknownScheme(t *testing.T) {
	_, err := SetupDatabase("mysql://localhost/vigil", 10, nil)
	assert.Error(t, err)
}

func TestConfigLogger(t *testing.T) {
	assert := assert.New(t)
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "server", "1")
	assert.NotContains(buf.String(), "hidden")
	assert.Contains(buf.String(), `"server":"1"`)

	buf.Reset()
	logger = ConfigLogger("debug", "text", &buf)
	logger.Debug("visible")
	assert.Contains(buf.String(), "msg=visible")
}

func TestConnectRedisBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
