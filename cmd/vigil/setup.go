package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/vorth-network/vigil/screener/cachestore"
	"github.com/vorth-network/vigil/screener/countstore"
	"github.com/vorth-network/vigil/screener/engine"
	"github.com/vorth-network/vigil/screener/flagstore"
	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"
	"github.com/vorth-network/vigil/screener/setstore"
	"github.com/vorth-network/vigil/util/cliutil"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	defaultCacheTTL = 10 * time.Minute
	// in-process verdict cache size
	memCacheSize = 50_000
)

// Everything a command needs, wired from the global flags.
type Stack struct {
	Logger   *slog.Logger
	Registry *registry.Registry
	Access   *registry.Access
	Policies *policy.Manager
	Engine   *engine.Engine

	rdb *redis.Client
}

func configLogger(cctx *cli.Context) *slog.Logger {
	return cliutil.ConfigLogger(cctx.String("log-level"), cctx.String("log-format"), os.Stderr)
}

// Opens the configured stores and builds the engine. The corpus is loaded before returning.
func setupStack(cctx *cli.Context, logger *slog.Logger) (*Stack, error) {
	ctx := cctx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	dataDir := cctx.String("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	var (
		regStore registry.Store
		polStore policy.Store
	)
	if dburl := cctx.String("database-url"); dburl != "" {
		db, err := cliutil.SetupDatabase(dburl, cctx.Int("max-db-connections"), logger)
		if err != nil {
			return nil, err
		}
		if cctx.Bool("db-tracing") {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		rs, err := registry.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		ps, err := policy.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		regStore, polStore = rs, ps
		logger.Info("using SQL stores", "database", redactURL(dburl))
	} else {
		regStore = registry.NewFileStore(filepath.Join(dataDir, "global_bans.json"), logger)
		polStore = policy.NewFileStore(filepath.Join(dataDir, "servers.json"), logger)
		logger.Info("using file stores", "dir", dataDir)
	}

	sets, err := setstore.NewFileSetStore(filepath.Join(dataDir, "sets.json"))
	if err != nil {
		return nil, fmt.Errorf("opening set store: %w", err)
	}

	st := &Stack{
		Logger:   logger,
		Registry: registry.NewRegistry(regStore, logger),
		Access:   registry.NewAccess(sets),
		Policies: policy.NewManager(polStore, logger),
	}
	if err := st.Policies.Load(ctx); err != nil {
		return nil, err
	}

	eng := &engine.Engine{
		Logger:   logger,
		Source:   st.Registry,
		Policies: st.Policies,
	}

	cacheTTL := cctx.Duration("cache-ttl")
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		rdb, err := cliutil.ConnectRedis(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		st.rdb = rdb
		eng.Flags = flagstore.NewRedisFlagStore(rdb)
		eng.Counters = countstore.NewRedisCountStore(rdb)
		eng.Verdicts = cachestore.NewRedisVerdictCache(rdb, cacheTTL)
	} else {
		eng.Flags = flagstore.NewMemFlagStore()
		eng.Counters = countstore.NewMemCountStore()
		eng.Verdicts = cachestore.NewMemVerdictCache(memCacheSize, cacheTTL)
	}

	eng.ReloadCorpus(ctx)
	st.Engine = eng
	return st, nil
}

func (st *Stack) Close() error {
	if st.rdb != nil {
		return st.rdb.Close()
	}
	return nil
}

// strips the password from a database URL before it is logged
func redactURL(dburl string) string {
	u, err := url.Parse(dburl)
	if err != nil {
		return "(unparsable)"
	}
	return u.Redacted()
}

// Re-reads the registry before a mutation, so a write never replaces a store that exists but could not be read. A missing store is fine: the first write creates it.
func loadRegistryForWrite(ctx context.Context, reg *registry.Registry) error {
	if err := reg.Load(ctx); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("refusing to modify registry: %w", err)
	}
	return nil
}

// Registry curation shared by the API and the CLI: the actor must be an auditor, and the store is re-read before the change.
func addIdentity(ctx context.Context, st *Stack, actor, id, name, reason string) (registry.BannedIdentity, error) {
	if err := st.Access.RequireAuditor(ctx, actor); err != nil {
		return registry.BannedIdentity{}, err
	}
	if err := loadRegistryForWrite(ctx, st.Registry); err != nil {
		return registry.BannedIdentity{}, err
	}
	bi, err := st.Registry.Add(ctx, id, name, reason)
	if err != nil {
		return registry.BannedIdentity{}, err
	}
	st.Logger.Info("identity added to registry", "id", bi.ID, "actor", actor)
	return bi, nil
}

// Returns an error wrapping registry.ErrNotFound when id is not in the registry.
func removeIdentity(ctx context.Context, st *Stack, actor, id string) error {
	if err := st.Access.RequireAuditor(ctx, actor); err != nil {
		return err
	}
	if err := loadRegistryForWrite(ctx, st.Registry); err != nil {
		return err
	}
	removed, err := st.Registry.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: no registry entry for %s", registry.ErrNotFound, id)
	}
	st.Logger.Info("identity removed from registry", "id", id, "actor", actor)
	return nil
}
