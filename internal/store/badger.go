package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/user/sctid/internal/kv"
	"github.com/user/sctid/internal/sctid"
)

var errCounterMismatch = errors.New("counter mismatch")

// BadgerStore keeps records and counters in Badger using the kv key layout.
// Counter swaps run inside a single read-write transaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a Badger store in dir.
func OpenBadger(dir string, opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(dir)
	bopts.Logger = nil
	bopts.SyncWrites = !opts.NoSync
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) ExistsAny(_ context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			_, err := txn.Get(kv.IdentifierKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, NewUnavailableError("exists", err)
	}
	return found, nil
}

func (s *BadgerStore) Upsert(_ context.Context, records []sctid.Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		val, err := encodeRecord(r)
		if err != nil {
			return NewUnavailableError("upsert", err)
		}
		if err := wb.Set(kv.IdentifierKey(r.ID), val); err != nil {
			return NewUnavailableError("upsert", err)
		}
		idx := kv.ItemIndexKey(r.Namespace, partition(r.Category), r.ItemID)
		if err := wb.Set(idx, []byte(r.ID)); err != nil {
			return NewUnavailableError("upsert", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return NewUnavailableError("upsert", err)
	}
	return nil
}

func getRecord(txn *badger.Txn, id string) (sctid.Record, bool, error) {
	item, err := txn.Get(kv.IdentifierKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sctid.Record{}, false, nil
	}
	if err != nil {
		return sctid.Record{}, false, err
	}
	var r sctid.Record
	err = item.Value(func(val []byte) error {
		return decodeRecord(val, &r)
	})
	if err != nil {
		return sctid.Record{}, false, err
	}
	return r, true, nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (sctid.Record, error) {
	var (
		r  sctid.Record
		ok bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, ok, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return sctid.Record{}, NewUnavailableError("get", err)
	}
	if !ok {
		return sctid.Record{}, NewNotFoundError(id)
	}
	return r, nil
}

func (s *BadgerStore) GetMany(_ context.Context, ids []string) (map[string]sctid.Record, error) {
	out := make(map[string]sctid.Record, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			r, ok, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			if ok {
				out[id] = r
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewUnavailableError("get", err)
	}
	return out, nil
}

func loadBadgerCounter(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		var ok bool
		v, ok = kv.DecodeCounter(val)
		if !ok {
			return fmt.Errorf("corrupt counter %q", key)
		}
		return nil
	})
	return v, err
}

func (s *BadgerStore) LoadCounter(_ context.Context, namespace string, cat sctid.Category) (uint64, error) {
	var v uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = loadBadgerCounter(txn, kv.CounterKey(namespace, partition(cat)))
		return err
	})
	if err != nil {
		return 0, NewUnavailableError("load counter", err)
	}
	return v, nil
}

func (s *BadgerStore) CompareAndSwapCounter(_ context.Context, namespace string, cat sctid.Category, prev, next uint64) (bool, error) {
	key := kv.CounterKey(namespace, partition(cat))
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := loadBadgerCounter(txn, key)
		if err != nil {
			return err
		}
		if cur != prev {
			return errCounterMismatch
		}
		return txn.Set(key, kv.EncodeCounter(next))
	})
	if errors.Is(err, errCounterMismatch) || errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, NewUnavailableError("swap counter", err)
	}
	return true, nil
}

func (s *BadgerStore) MaxItemID(_ context.Context, namespace string, cat sctid.Category) (uint64, bool, error) {
	prefix := kv.ItemIndexPrefix(namespace, partition(cat))
	var (
		itemID uint64
		found  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(append(append([]byte(nil), prefix...), bytes.Repeat([]byte{0xFF}, 9)...))
		if it.ValidForPrefix(prefix) {
			itemID, found = kv.ItemIDFromIndexKey(it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, false, NewUnavailableError("max item id", err)
	}
	return itemID, found, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
