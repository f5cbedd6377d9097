package registry

import (
	"context"
	"fmt"

	"github.com/vorth-network/vigil/screener/setstore"
)

// Authorization checks for curation, backed by the named sets in a SetStore.
type Access struct {
	Sets setstore.SetStore
}

func NewAccess(sets setstore.SetStore) *Access {
	return &Access{Sets: sets}
}

func (a *Access) IsAuditor(ctx context.Context, userID string) (bool, error) {
	return a.Sets.InSet(ctx, setstore.Auditors, userID)
}

// Returns an error wrapping ErrNotAuditor unless userID is an auditor.
func (a *Access) RequireAuditor(ctx context.Context, userID string) error {
	ok, err := a.IsAuditor(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking auditor list: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAuditor, userID)
	}
	return nil
}

func (a *Access) AddAuditor(ctx context.Context, userID string) (bool, error) {
	return a.Sets.Add(ctx, setstore.Auditors, userID)
}

func (a *Access) RemoveAuditor(ctx context.Context, userID string) (bool, error) {
	return a.Sets.Remove(ctx, setstore.Auditors, userID)
}

func (a *Access) Auditors(ctx context.Context) ([]string, error) {
	return a.Sets.List(ctx, setstore.Auditors)
}

func (a *Access) IsTrustedServer(ctx context.Context, serverID string) (bool, error) {
	return a.Sets.InSet(ctx, setstore.TrustedServers, serverID)
}

// Adds a server to the trusted network. Returns false if it was already verified.
func (a *Access) VerifyServer(ctx context.Context, serverID string) (bool, error) {
	return a.Sets.Add(ctx, setstore.TrustedServers, serverID)
}

func (a *Access) UnverifyServer(ctx context.Context, serverID string) (bool, error) {
	return a.Sets.Remove(ctx, setstore.TrustedServers, serverID)
}

func (a *Access) TrustedServers(ctx context.Context) ([]string, error) {
	return a.Sets.List(ctx, setstore.TrustedServers)
}
