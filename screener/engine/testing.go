package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vorth-network/vigil/screener/cachestore"
	"github.com/vorth-network/vigil/screener/countstore"
	"github.com/vorth-network/vigil/screener/flagstore"
	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"
)

// Engine over in-memory stores, with the given identities (id to name) in the registry and the corpus loaded.
func EngineTestFixture(idents map[string]string) *Engine {
	store := registry.NewMemStore()
	for id, name := range idents {
		store.Idents[id] = registry.BannedIdentity{ID: id, Name: name, Reason: "test"}
	}
	logger := slog.Default()
	eng := &Engine{
		Logger:   logger,
		Source:   registry.NewRegistry(store, logger),
		Policies: policy.NewManager(policy.NewMemStore(), logger),
		Flags:    flagstore.NewMemFlagStore(),
		Counters: countstore.NewMemCountStore(),
		Verdicts: cachestore.NewMemVerdictCache(100, time.Hour),
	}
	eng.ReloadCorpus(context.Background())
	return eng
}

// Executor that records calls, failing with the configured error per action ("ban" or "remove").
type RecordingExecutor struct {
	mu    sync.Mutex
	Calls []string
	Fail  map[string]error
}

func (e *RecordingExecutor) Ban(ctx context.Context, serverID, memberID, reason string) error {
	return e.record("ban", serverID, memberID)
}

func (e *RecordingExecutor) Remove(ctx context.Context, serverID, memberID, reason string) error {
	return e.record("remove", serverID, memberID)
}

func (e *RecordingExecutor) record(action, serverID, memberID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, action+" "+serverID+"/"+memberID)
	return e.Fail[action]
}
