package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/vorth-network/vigil/util/jsonfile"
)

// Registry persisted as a JSON document on local disk: {"bans": {"<id>": {"name", "reason", "servers"}}}
type FileStore struct {
	Path   string
	Logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

type fileDoc struct {
	Bans map[string]json.RawMessage `json:"bans"`
}

type fileRecord struct {
	Name    string        `json:"name"`
	Reason  string        `json:"reason"`
	Servers []jsonfile.ID `json:"servers"`
}

type fileRecordOut struct {
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Servers []string `json:"servers"`
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Path: path, Logger: logger}
}

func (s *FileStore) Load(ctx context.Context) (map[string]BannedIdentity, error) {
	var doc fileDoc
	if err := jsonfile.Read(s.Path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found: %w", ErrCorpusUnavailable, s.Path, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}

	out := make(map[string]BannedIdentity, len(doc.Bans))
	for id, raw := range doc.Bans {
		var rec fileRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.Logger.Warn("skipping malformed registry record", "id", id, "err", err)
			continue
		}
		out[id] = BannedIdentity{
			ID:            id,
			Name:          rec.Name,
			Reason:        rec.Reason,
			OriginServers: jsonfile.Strings(rec.Servers),
		}
	}
	return out, nil
}

func (s *FileStore) Save(ctx context.Context, idents map[string]BannedIdentity) error {
	bans := make(map[string]fileRecordOut, len(idents))
	for id, bi := range idents {
		servers := append([]string{}, bi.OriginServers...)
		sort.Strings(servers)
		bans[id] = fileRecordOut{
			Name:    bi.Name,
			Reason:  bi.Reason,
			Servers: servers,
		}
	}
	return jsonfile.WriteAtomic(s.Path, map[string]any{"bans": bans})
}
