package store

import (
	"context"
	"sync"

	"github.com/user/sctid/internal/sctid"
)

type counterKey struct {
	namespace string
	partition uint8
}

// MemoryStore is an in-process IdentifierStore used by tests and the
// "memory" backend.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]sctid.Record
	counters map[counterKey]uint64
	maxItem  map[counterKey]uint64

	// FailWith, when set, is returned from every operation.
	FailWith error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]sctid.Record),
		counters: make(map[counterKey]uint64),
		maxItem:  make(map[counterKey]uint64),
	}
}

func (s *MemoryStore) fail(op string) error {
	if s.FailWith != nil {
		return NewUnavailableError(op, s.FailWith)
	}
	return nil
}

func (s *MemoryStore) ExistsAny(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("exists"); err != nil {
		return nil, err
	}
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (s *MemoryStore) Upsert(_ context.Context, records []sctid.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("upsert"); err != nil {
		return err
	}
	for _, r := range records {
		s.records[r.ID] = r
		k := counterKey{r.Namespace, partition(r.Category)}
		if r.ItemID > s.maxItem[k] {
			s.maxItem[k] = r.ItemID
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (sctid.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get"); err != nil {
		return sctid.Record{}, err
	}
	r, ok := s.records[id]
	if !ok {
		return sctid.Record{}, NewNotFoundError(id)
	}
	return r, nil
}

func (s *MemoryStore) GetMany(_ context.Context, ids []string) (map[string]sctid.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	out := make(map[string]sctid.Record, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadCounter(_ context.Context, namespace string, cat sctid.Category) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("load counter"); err != nil {
		return 0, err
	}
	return s.counters[counterKey{namespace, partition(cat)}], nil
}

func (s *MemoryStore) CompareAndSwapCounter(_ context.Context, namespace string, cat sctid.Category, prev, next uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("swap counter"); err != nil {
		return false, err
	}
	k := counterKey{namespace, partition(cat)}
	if s.counters[k] != prev {
		return false, nil
	}
	s.counters[k] = next
	return true, nil
}

func (s *MemoryStore) MaxItemID(_ context.Context, namespace string, cat sctid.Category) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("max item id"); err != nil {
		return 0, false, err
	}
	v, ok := s.maxItem[counterKey{namespace, partition(cat)}]
	return v, ok, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }
