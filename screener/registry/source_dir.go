package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vorth-network/vigil/util/jsonfile"
)

// Reads ban log exports from a directory, one `<server id>.json` file per server, each a JSON array of {"user_id", "user_name", "reason"} objects.
type DirBanLogSource struct {
	Dir string
}

var _ BanLogSource = (*DirBanLogSource)(nil)

type banExport struct {
	UserID   jsonfile.ID `json:"user_id"`
	UserName string      `json:"user_name"`
	Reason   string      `json:"reason"`
}

func (s *DirBanLogSource) FetchBans(ctx context.Context, serverID string) ([]BanEntry, error) {
	if serverID == "" || filepath.Base(serverID) != serverID {
		return nil, fmt.Errorf("invalid server id: %q", serverID)
	}

	var exports []banExport
	if err := jsonfile.Read(filepath.Join(s.Dir, serverID+".json"), &exports); err != nil {
		return nil, fmt.Errorf("reading ban log for %s: %w", serverID, err)
	}
	out := make([]BanEntry, 0, len(exports))
	for _, e := range exports {
		out = append(out, BanEntry{
			UserID:   string(e.UserID),
			UserName: e.UserName,
			Reason:   e.Reason,
		})
	}
	return out, nil
}
