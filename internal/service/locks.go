package service

import (
	"cmp"
	"slices"
	"sync"

	"github.com/user/sctid/internal/sctid"
)

type lockKey struct {
	namespace string
	category  sctid.Category
}

func compareKeys(a, b lockKey) int {
	if c := cmp.Compare(a.namespace, b.namespace); c != 0 {
		return c
	}
	return cmp.Compare(a.category, b.category)
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks hands out one mutex per (namespace, category). Entries are
// dropped once no caller holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*keyedLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[lockKey]*keyedLock)}
}

// lock acquires every key in a fixed order and returns the release func.
func (k *keyedLocks) lock(keys ...lockKey) func() {
	keys = slices.Clone(keys)
	slices.SortFunc(keys, compareKeys)
	keys = slices.Compact(keys)

	held := make([]*keyedLock, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		l := k.locks[key]
		if l == nil {
			l = &keyedLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
