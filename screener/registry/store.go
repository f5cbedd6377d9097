package registry

import (
	"context"
	"sync"
)

// Load/save boundary for the persisted registry.
//
// Load must wrap ErrCorpusUnavailable when the backing data can not be read or parsed. Individual malformed records are skipped, not fatal.
type Store interface {
	Load(ctx context.Context) (map[string]BannedIdentity, error)
	Save(ctx context.Context, idents map[string]BannedIdentity) error
}

type MemStore struct {
	mu     sync.Mutex
	Idents map[string]BannedIdentity
	// when set, returned from every Save (for exercising failure paths)
	SaveErr error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Idents: make(map[string]BannedIdentity),
	}
}

func (s *MemStore) Load(ctx context.Context) (map[string]BannedIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BannedIdentity, len(s.Idents))
	for id, bi := range s.Idents {
		bi = bi.clone()
		bi.ID = id
		out[id] = bi
	}
	return out, nil
}

func (s *MemStore) Save(ctx context.Context, idents map[string]BannedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Idents = make(map[string]BannedIdentity, len(idents))
	for id, bi := range idents {
		s.Idents[id] = bi.clone()
	}
	return nil
}
