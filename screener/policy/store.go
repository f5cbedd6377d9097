package policy

import (
	"context"
	"sync"
)

// Load/save boundary for persisted policies, keyed by server id.
type Store interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, records map[string]Record) error
}

type MemStore struct {
	mu      sync.Mutex
	Records map[string]Record
	// number of successful saves
	Saves int
	// when set, returned from every Save
	SaveErr error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Records: make(map[string]Record),
	}
}

func (s *MemStore) Load(ctx context.Context) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.Records))
	for k, v := range s.Records {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) Save(ctx context.Context, records map[string]Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Records = make(map[string]Record, len(records))
	for k, v := range records {
		s.Records[k] = v
	}
	s.Saves++
	return nil
}
