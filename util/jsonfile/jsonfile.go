// Helpers for the small JSON documents (ban list, server settings, named sets) that vigil keeps on local disk.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Reads and decodes the JSON document at path into out.
//
// A missing file is reported with an error satisfying os.IsNotExist / errors.Is(err, fs.ErrNotExist), so callers can treat it as "empty".
func Read(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Encodes val as indented JSON and replaces the file at path.
//
// The document is written to a temporary file in the same directory, flushed, and renamed over the destination, so readers never observe a partially written file. The temporary file is removed on every error path.
func WriteAtomic(path string, val any) error {
	raw, err := json.MarshalIndent(val, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
