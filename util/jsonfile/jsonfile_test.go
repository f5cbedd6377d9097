package jsonfile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "doc.json")

	in := map[string][]string{"servers": {"1", "2"}}
	require.NoError(t, WriteAtomic(p, in))

	var out map[string][]string
	require.NoError(t, Read(p, &out))
	assert.Equal(in, out)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(entries, 1)
}

func TestReadMissing(t *testing.T) {
	var out map[string]any
	err := Read(filepath.Join(t.TempDir(), "nope.json"), &out)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReadMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))

	var out map[string]any
	err := Read(p, &out)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestIDUnmarshal(t *testing.T) {
	assert := assert.New(t)

	var doc struct {
		IDs []ID `json:"ids"`
		One ID   `json:"one"`
	}
	err := json.Unmarshal([]byte(`{"ids": [123456789012345678, "42", null], "one": 7}`), &doc)
	assert.NoError(err)
	assert.Equal([]ID{"123456789012345678", "42", ""}, doc.IDs)
	assert.Equal(ID("7"), doc.One)
	assert.Equal([]string{"123456789012345678", "42"}, Strings(doc.IDs))

	var bad ID
	assert.Error(json.Unmarshal([]byte(`-1.5`), &bad))
	assert.Error(json.Unmarshal([]byte(`{}`), &bad))
}
