package engine

import (
	"context"
	"errors"

	"github.com/vorth-network/vigil/screener/registry"
)

// Executors return this (possibly wrapped) when the bot lacks the permission for an action.
var ErrMissingPermissions = errors.New("missing permissions")

// Applies enforcement actions on the chat platform.
type Executor interface {
	Ban(ctx context.Context, serverID, memberID, reason string) error
	Remove(ctx context.Context, serverID, memberID, reason string) error
}

// Supplies the banned-identity corpus. Implemented by registry.Registry.
type CorpusSource interface {
	LoadIdentities(ctx context.Context) ([]registry.BannedIdentity, error)
}
