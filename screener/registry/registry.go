// Shared registry of banned identities, and the curation operations reviewers use to maintain it.
//
// The registry is the source of the corpus that name screening matches against. Persistence is delegated to a Store (JSON file, SQL database, or memory); the Registry type serializes curation and only changes its in-memory view after a successful save.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// A previously flagged account in the shared registry.
type BannedIdentity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
	// servers whose moderation logs corroborate this identity
	OriginServers []string `json:"servers"`
}

func (bi BannedIdentity) clone() BannedIdentity {
	bi.OriginServers = slices.Clone(bi.OriginServers)
	return bi
}

// Details a reviewer needs to decide on a removal request.
type Suggestion struct {
	Identity    BannedIdentity
	RequestedBy string
}

type Registry struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	idents map[string]BannedIdentity
}

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger.With("component", "registry"),
		idents: make(map[string]BannedIdentity),
	}
}

// Re-reads the backing store, replacing the in-memory view.
//
// On failure the previous view is kept and the error (wrapping ErrCorpusUnavailable) is returned; the caller decides how to degrade.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idents, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	r.idents = idents
	r.logger.Info("loaded ban registry", "entries", len(idents))
	return nil
}

// Re-reads the backing store and returns all identities, sorted by ID.
func (r *Registry) LoadIdentities(ctx context.Context) ([]BannedIdentity, error) {
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r.List(), nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idents)
}

func (r *Registry) Get(id string) (BannedIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bi, ok := r.idents[id]
	return bi.clone(), ok
}

// All identities, sorted by ID.
func (r *Registry) List() []BannedIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := lo.MapToSlice(r.idents, func(_ string, bi BannedIdentity) BannedIdentity {
		return bi.clone()
	})
	slices.SortFunc(out, func(a, b BannedIdentity) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Adds an identity, or refreshes the name and reason of an existing one (origin servers are kept).
func (r *Registry) Add(ctx context.Context, id, name, reason string) (BannedIdentity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return BannedIdentity{}, fmt.Errorf("identity id is required")
	}
	if reason == "" {
		reason = "No reason provided"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bi := r.idents[id].clone()
	bi.ID = id
	bi.Name = name
	bi.Reason = reason
	if bi.OriginServers == nil {
		bi.OriginServers = []string{}
	}

	staged := r.cloneIdents()
	staged[id] = bi
	if err := r.persist(ctx, staged); err != nil {
		return BannedIdentity{}, err
	}
	r.idents = staged
	r.logger.Info("added identity to registry", "id", id, "name", name)
	return bi.clone(), nil
}

// Removes an identity. Returns false if it was not in the registry.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.idents[id]; !ok {
		return false, nil
	}
	staged := r.cloneIdents()
	delete(staged, id)
	if err := r.persist(ctx, staged); err != nil {
		return false, err
	}
	r.idents = staged
	r.logger.Info("removed identity from registry", "id", id)
	return true, nil
}

// Replaces the full registry contents, eg after a rebuild from moderation logs.
func (r *Registry) Replace(ctx context.Context, idents map[string]BannedIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]BannedIdentity, len(idents))
	for id, bi := range idents {
		bi = bi.clone()
		bi.ID = id
		staged[id] = bi
	}
	if err := r.persist(ctx, staged); err != nil {
		return err
	}
	r.idents = staged
	r.logger.Info("replaced ban registry", "entries", len(staged))
	return nil
}

// Builds a removal request for reviewers. Returns ErrNotFound for unknown identities.
func (r *Registry) SuggestRemoval(ctx context.Context, id, requestedBy string) (Suggestion, error) {
	bi, ok := r.Get(id)
	if !ok {
		return Suggestion{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info("removal suggested", "id", id, "requested_by", requestedBy)
	return Suggestion{Identity: bi, RequestedBy: requestedBy}, nil
}

func (r *Registry) persist(ctx context.Context, idents map[string]BannedIdentity) error {
	if err := r.store.Save(ctx, idents); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// caller holds the lock
func (r *Registry) cloneIdents() map[string]BannedIdentity {
	out := make(map[string]BannedIdentity, len(r.idents)+1)
	for id, bi := range r.idents {
		out[id] = bi.clone()
	}
	return out
}
