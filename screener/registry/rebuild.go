package registry

import (
	"context"
	"log/slog"
	"regexp"
	"slices"

	"golang.org/x/time/rate"
)

// Ban reasons that mark an entry as part of the shared network.
var DefaultReasonPattern = regexp.MustCompile(`(?i)\b(vorth|racc)\b`)

// A single ban from a server's moderation log.
type BanEntry struct {
	UserID   string
	UserName string
	Reason   string
}

// Fetches the current ban list of a server.
type BanLogSource interface {
	FetchBans(ctx context.Context, serverID string) ([]BanEntry, error)
}

type RebuildOptions struct {
	// defaults to DefaultReasonPattern
	ReasonPattern *regexp.Regexp
	// server fetches per second; zero means unlimited
	RateLimit rate.Limit
	Logger    *slog.Logger
}

type RebuildStats struct {
	ServersProcessed int
	ServersFailed    int
	// entries created or corroborated
	EntriesMatched int
}

// Rebuilds the registry contents from scratch using the ban logs of the given (trusted) servers.
//
// Only bans whose reason matches the reason pattern are kept. The first server to report a user creates its entry; each later server appends itself to the entry's origin servers and refreshes the name and reason. Servers whose logs can not be fetched are logged and skipped. The returned map is meant to fully replace the registry, so users no longer banned anywhere drop out.
//
// Only returns an error if ctx is cancelled while waiting on the rate limiter.
func Rebuild(ctx context.Context, servers []string, source BanLogSource, opts RebuildOptions) (map[string]BannedIdentity, RebuildStats, error) {
	pattern := opts.ReasonPattern
	if pattern == nil {
		pattern = DefaultReasonPattern
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rebuild")

	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, 1)

	out := make(map[string]BannedIdentity)
	var stats RebuildStats

	if len(servers) == 0 {
		logger.Warn("no trusted servers, registry will be empty")
		return out, stats, nil
	}

	for _, serverID := range servers {
		if err := limiter.Wait(ctx); err != nil {
			return nil, stats, err
		}

		bans, err := source.FetchBans(ctx, serverID)
		if err != nil {
			logger.Error("failed to fetch ban log, skipping server", "server", serverID, "err", err)
			stats.ServersFailed++
			continue
		}

		matched := 0
		for _, ban := range bans {
			if ban.UserID == "" || ban.Reason == "" || !pattern.MatchString(ban.Reason) {
				continue
			}
			existing, ok := out[ban.UserID]
			if !ok {
				out[ban.UserID] = BannedIdentity{
					ID:            ban.UserID,
					Name:          ban.UserName,
					Reason:        ban.Reason,
					OriginServers: []string{serverID},
				}
				matched++
				continue
			}
			if slices.Contains(existing.OriginServers, serverID) {
				continue
			}
			existing.OriginServers = append(existing.OriginServers, serverID)
			existing.Name = ban.UserName
			existing.Reason = ban.Reason
			out[ban.UserID] = existing
			matched++
		}
		if matched > 0 {
			logger.Info("merged bans from server", "server", serverID, "entries", matched)
		}
		stats.ServersProcessed++
		stats.EntriesMatched += matched
	}

	logger.Info("rebuilt registry", "servers", stats.ServersProcessed, "failed", stats.ServersFailed, "entries", len(out))
	return out, stats, nil
}
