package policy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Owns the in-memory policy map and serializes all changes to it.
//
// Every mutation is applied to a copy, persisted, and only then swapped in, so a failed save leaves the served policies unchanged.
//
// The store may be shared with other processes (the CLI writes the same file or database the server reads). Mutations, first-sight creation and List re-read the store before acting, so a change made elsewhere is never written over. Get for a known server answers from memory; call Load to pick up outside changes to it.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	policies map[string]ServerPolicy
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		logger:   logger.With("component", "policy"),
		policies: make(map[string]ServerPolicy),
	}
}

// (Re-)reads policies from the store, repairing incomplete records. If anything was repaired the full set is written back once before serving.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

// caller holds the lock
func (m *Manager) load(ctx context.Context) error {
	records, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading server policies: %w", err)
	}

	policies := make(map[string]ServerPolicy, len(records))
	var repaired []string
	for server, rec := range records {
		p, fixed := fromRecord(server, rec, m.logger)
		if fixed {
			repaired = append(repaired, server)
		}
		policies[server] = p
	}

	if len(repaired) > 0 {
		slices.Sort(repaired)
		if err := m.persist(ctx, policies); err != nil {
			// repaired values are still served; the next successful save writes them
			m.logger.Warn("failed to persist repaired policies", "servers", strings.Join(repaired, ","), "err", err)
		} else {
			m.logger.Info("repaired incomplete server policies", "count", len(repaired))
		}
	}

	m.policies = policies
	return nil
}

// Returns the server's policy, creating and persisting the default policy on first sight.
//
// If the new default can not be saved, the default is still returned along with an error wrapping ErrPersistence.
func (m *Manager) Get(ctx context.Context, serverID string) (ServerPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.policies[serverID]; ok {
		return p.Clone(), nil
	}

	// another process may have created it, or changed other servers since we last read
	if err := m.load(ctx); err != nil {
		return DefaultPolicy(serverID), err
	}
	if p, ok := m.policies[serverID]; ok {
		return p.Clone(), nil
	}

	p := DefaultPolicy(serverID)
	staged := m.stage()
	staged[serverID] = p
	if err := m.persist(ctx, staged); err != nil {
		return p.Clone(), err
	}
	m.policies = staged
	m.logger.Info("created default policy", "server", serverID)
	return p.Clone(), nil
}

// All known policies, sorted by server id.
func (m *Manager) List(ctx context.Context) ([]ServerPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	out := make([]ServerPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b ServerPolicy) int {
		return strings.Compare(a.ServerID, b.ServerID)
	})
	return out, nil
}

func (m *Manager) SetScreening(ctx context.Context, serverID string, enabled bool) (ServerPolicy, error) {
	p, _, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		changed := p.ScreeningEnabled != enabled
		p.ScreeningEnabled = enabled
		return changed
	})
	if err == nil {
		m.logger.Info("screening toggled", "server", serverID, "enabled", enabled)
	}
	return p, err
}

// Sets the actions from an operator spec (see ParseActionSpec). An invalid spec leaves the policy unchanged.
func (m *Manager) SetAction(ctx context.Context, serverID, spec string) (ServerPolicy, error) {
	actions, err := ParseActionSpec(spec)
	if err != nil {
		return ServerPolicy{}, err
	}
	return m.SetActions(ctx, serverID, actions)
}

func (m *Manager) SetActions(ctx context.Context, serverID string, actions ActionSet) (ServerPolicy, error) {
	if !actions.Valid() {
		return ServerPolicy{}, fmt.Errorf("%w: %08b", ErrInvalidAction, uint8(actions))
	}
	p, _, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		changed := p.Actions != actions
		p.Actions = actions
		return changed
	})
	return p, err
}

// Sets where match notifications go; an empty channel clears it.
func (m *Manager) SetNotificationChannel(ctx context.Context, serverID, channelID string) (ServerPolicy, error) {
	channelID = strings.TrimSpace(channelID)
	p, _, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		changed := p.NotificationChannel != channelID
		p.NotificationChannel = channelID
		return changed
	})
	return p, err
}

// Returns false if the member was already exempt.
func (m *Manager) AddExemption(ctx context.Context, serverID, memberID string) (bool, error) {
	_, changed, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		return p.addExemption(memberID)
	})
	return changed, err
}

// Returns false if the member was not exempt.
func (m *Manager) RemoveExemption(ctx context.Context, serverID, memberID string) (bool, error) {
	_, changed, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		return p.removeExemption(memberID)
	})
	return changed, err
}

// Puts the server back on the default policy. The server stays in the store.
func (m *Manager) Reset(ctx context.Context, serverID string) (ServerPolicy, error) {
	p, _, err := m.update(ctx, serverID, func(p *ServerPolicy) bool {
		*p = DefaultPolicy(serverID)
		return true
	})
	return p, err
}

// Applies fn to a copy of the server's policy (default if unknown) and persists the result if fn reports a change or the policy is new. The store is re-read first so the save carries every other server's current record.
func (m *Manager) update(ctx context.Context, serverID string, fn func(p *ServerPolicy) bool) (ServerPolicy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return ServerPolicy{}, false, err
	}

	cur, exists := m.policies[serverID]
	if !exists {
		cur = DefaultPolicy(serverID)
	}
	next := cur.Clone()
	changed := fn(&next)
	if exists && !changed {
		return next, false, nil
	}

	staged := m.stage()
	staged[serverID] = next
	if err := m.persist(ctx, staged); err != nil {
		return cur.Clone(), false, err
	}
	m.policies = staged
	return next.Clone(), changed, nil
}

// caller holds the lock
func (m *Manager) stage() map[string]ServerPolicy {
	out := make(map[string]ServerPolicy, len(m.policies)+1)
	for k, p := range m.policies {
		out[k] = p.Clone()
	}
	return out
}

func (m *Manager) persist(ctx context.Context, policies map[string]ServerPolicy) error {
	records := make(map[string]Record, len(policies))
	for server, p := range policies {
		records[server] = toRecord(p)
	}
	if err := m.store.Save(ctx, records); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
