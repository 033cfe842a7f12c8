package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/user/sctid/internal/kv"
	"github.com/user/sctid/internal/sctid"
)

// PebbleStore keeps records and counters in a Pebble LSM using the kv key
// layout.
type PebbleStore struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	// casMu serializes counter read-modify-write; Pebble has no transactions.
	casMu sync.Mutex
}

// OpenPebble opens or creates a Pebble store in dir.
func OpenPebble(dir string, opts Options) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}

	cache := pebble.NewCache(64 << 20)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:        cache,
		MemTableSize: 32 << 20,
		// Point lookups dominate (existence checks per candidate).
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	if !opts.NoSync {
		pebbleOpts.WALMinSyncInterval = func() time.Duration { return 2 * time.Millisecond }
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	s := &PebbleStore{db: db, writeOpts: pebble.Sync}
	if opts.NoSync {
		s.writeOpts = pebble.NoSync
	}
	return s, nil
}

func (s *PebbleStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) ExistsAny(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, NewUnavailableError("exists", err)
		}
		ok, err := s.has(kv.IdentifierKey(id))
		if err != nil {
			return nil, NewUnavailableError("exists", err)
		}
		if ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (s *PebbleStore) Upsert(ctx context.Context, records []sctid.Record) error {
	if err := ctx.Err(); err != nil {
		return NewUnavailableError("upsert", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, r := range records {
		val, err := encodeRecord(r)
		if err != nil {
			return NewUnavailableError("upsert", err)
		}
		if err := batch.Set(kv.IdentifierKey(r.ID), val, nil); err != nil {
			return NewUnavailableError("upsert", err)
		}
		idx := kv.ItemIndexKey(r.Namespace, partition(r.Category), r.ItemID)
		if err := batch.Set(idx, []byte(r.ID), nil); err != nil {
			return NewUnavailableError("upsert", err)
		}
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return NewUnavailableError("upsert", err)
	}
	return nil
}

func (s *PebbleStore) get(id string) (sctid.Record, bool, error) {
	val, closer, err := s.db.Get(kv.IdentifierKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return sctid.Record{}, false, nil
	}
	if err != nil {
		return sctid.Record{}, false, err
	}
	defer closer.Close()
	var r sctid.Record
	if err := decodeRecord(val, &r); err != nil {
		return sctid.Record{}, false, err
	}
	return r, true, nil
}

func (s *PebbleStore) Get(_ context.Context, id string) (sctid.Record, error) {
	r, ok, err := s.get(id)
	if err != nil {
		return sctid.Record{}, NewUnavailableError("get", err)
	}
	if !ok {
		return sctid.Record{}, NewNotFoundError(id)
	}
	return r, nil
}

func (s *PebbleStore) GetMany(_ context.Context, ids []string) (map[string]sctid.Record, error) {
	out := make(map[string]sctid.Record, len(ids))
	for _, id := range ids {
		r, ok, err := s.get(id)
		if err != nil {
			return nil, NewUnavailableError("get", err)
		}
		if ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *PebbleStore) loadCounter(namespace string, cat sctid.Category) (uint64, error) {
	val, closer, err := s.db.Get(kv.CounterKey(namespace, partition(cat)))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	v, ok := kv.DecodeCounter(val)
	if !ok {
		return 0, fmt.Errorf("corrupt counter for %s/%s", sctid.NamespaceLabel(namespace), cat)
	}
	return v, nil
}

func (s *PebbleStore) LoadCounter(_ context.Context, namespace string, cat sctid.Category) (uint64, error) {
	v, err := s.loadCounter(namespace, cat)
	if err != nil {
		return 0, NewUnavailableError("load counter", err)
	}
	return v, nil
}

func (s *PebbleStore) CompareAndSwapCounter(_ context.Context, namespace string, cat sctid.Category, prev, next uint64) (bool, error) {
	s.casMu.Lock()
	defer s.casMu.Unlock()
	cur, err := s.loadCounter(namespace, cat)
	if err != nil {
		return false, NewUnavailableError("swap counter", err)
	}
	if cur != prev {
		return false, nil
	}
	if err := s.db.Set(kv.CounterKey(namespace, partition(cat)), kv.EncodeCounter(next), s.writeOpts); err != nil {
		return false, NewUnavailableError("swap counter", err)
	}
	return true, nil
}

func (s *PebbleStore) MaxItemID(_ context.Context, namespace string, cat sctid.Category) (uint64, bool, error) {
	prefix := kv.ItemIndexPrefix(namespace, partition(cat))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: kv.PrefixUpperBound(prefix),
	})
	if err != nil {
		return 0, false, NewUnavailableError("max item id", err)
	}
	defer iter.Close()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return 0, false, NewUnavailableError("max item id", err)
		}
		return 0, false, nil
	}
	itemID, ok := kv.ItemIDFromIndexKey(iter.Key())
	return itemID, ok, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
