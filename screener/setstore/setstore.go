// Named membership sets (trusted servers, auditors) consulted by authorization checks.
//
// Includes an interface and implementations using in-process memory and a JSON file on local disk.
package setstore

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"github.com/vorth-network/vigil/util/jsonfile"
)

const (
	// servers whose moderation logs feed the registry, and which may run administrative commands
	TrustedServers = "trusted-servers"
	// accounts allowed to curate the registry
	Auditors = "auditors"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
	// returns false if the value was already a member
	Add(ctx context.Context, name, val string) (bool, error)
	// returns false if the value was not a member
	Remove(ctx context.Context, name, val string) (bool, error)
	// sorted members of the set; empty for unknown sets
	List(ctx context.Context, name string) ([]string, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: unknown sets have no members
		return false, nil
	}
	return set[val], nil
}

func (s *MemSetStore) Add(ctx context.Context, name, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.Sets[name]
	if !ok {
		set = make(map[string]bool)
		s.Sets[name] = set
	}
	if set[val] {
		return false, nil
	}
	set[val] = true
	return true, nil
}

func (s *MemSetStore) Remove(ctx context.Context, name, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.Sets[name]
	if !ok || !set[val] {
		return false, nil
	}
	delete(set, val)
	return true, nil
}

func (s *MemSetStore) List(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMembers(s.Sets[name]), nil
}

// Merges the sets in a JSON file (an object mapping set name to a list of values) into the store.
func (s *MemSetStore) LoadFromFileJSON(p string) error {
	var sets map[string][]string
	if err := jsonfile.Read(p, &sets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, l := range sets {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[val] = true
		}
		s.Sets[name] = m
	}
	return nil
}

// SetStore persisted as a single JSON document.
//
// The file is the only state: every call re-reads it, so changes written by another process (eg the CLI while the server runs) are seen immediately. Mutations are serialized within the process and written with an atomic rename.
type FileSetStore struct {
	Path string

	mu sync.Mutex
}

var _ SetStore = (*FileSetStore)(nil)

// Opens the JSON set document at path. A missing file is treated as empty, and created on first write.
func NewFileSetStore(path string) (*FileSetStore, error) {
	s := &FileSetStore{Path: path}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, err := s.read()
	if err != nil {
		return false, err
	}
	return sets[name][val], nil
}

func (s *FileSetStore) List(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, err := s.read()
	if err != nil {
		return nil, err
	}
	return sortedMembers(sets[name]), nil
}

func (s *FileSetStore) Add(ctx context.Context, name, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, err := s.read()
	if err != nil {
		return false, err
	}
	if sets[name][val] {
		return false, nil
	}
	if sets[name] == nil {
		sets[name] = make(map[string]bool)
	}
	sets[name][val] = true
	if err := s.write(sets); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileSetStore) Remove(ctx context.Context, name, val string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, err := s.read()
	if err != nil {
		return false, err
	}
	if !sets[name][val] {
		return false, nil
	}
	delete(sets[name], val)
	if err := s.write(sets); err != nil {
		return false, err
	}
	return true, nil
}

// caller holds the lock
func (s *FileSetStore) read() (map[string]map[string]bool, error) {
	sets := make(map[string]map[string]bool)
	var raw map[string][]string
	if err := jsonfile.Read(s.Path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sets, nil
		}
		return nil, err
	}
	for name, l := range raw {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[val] = true
		}
		sets[name] = m
	}
	return sets, nil
}

// caller holds the lock
func (s *FileSetStore) write(sets map[string]map[string]bool) error {
	doc := make(map[string][]string, len(sets))
	for name, set := range sets {
		doc[name] = sortedMembers(set)
	}
	return jsonfile.WriteAtomic(s.Path, doc)
}

func sortedMembers(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
