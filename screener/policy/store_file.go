package policy

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/vorth-network/vigil/util/jsonfile"
)

// Policies persisted as a single JSON document on local disk, keyed by server id.
type FileStore struct {
	Path   string
	Logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Path: path, Logger: logger}
}

// A missing file loads as no policies. A record that can not be decoded loads with every field absent, so it is repaired to defaults.
func (s *FileStore) Load(ctx context.Context) (map[string]Record, error) {
	var raw map[string]json.RawMessage
	if err := jsonfile.Read(s.Path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Record{}, nil
		}
		return nil, err
	}

	out := make(map[string]Record, len(raw))
	for server, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			s.Logger.Warn("malformed server settings, resetting to defaults", "server", server, "err", err)
			rec = Record{}
		}
		out[server] = rec
	}
	return out, nil
}

func (s *FileStore) Save(ctx context.Context, records map[string]Record) error {
	return jsonfile.WriteAtomic(s.Path, records)
}
