// Moderation flags attached to members, recorded when screening matches them.
//
// Includes an interface and implementations using redis and in-process memory.
package flagstore

import (
	"context"
)

const (
	// member's name matched the banned-identity corpus
	FlagNameMatch = "name-match"
)

type FlagStore interface {
	// sorted flags for the key; empty if none
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	// does not error if flags are not set
	Remove(ctx context.Context, key string, flags []string) error
}

// Flag key for a member within a server.
func MemberKey(serverID, memberID string) string {
	return serverID + "/" + memberID
}
