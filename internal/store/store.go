// Package store persists identifier records and sequential counters.
//
// The allocation engine only relies on existence checks, upserts and point
// reads of records plus a compare-and-swap counter per namespace and
// category. Backends are interchangeable; Pebble is the default.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/user/sctid/internal/sctid"
)

// IdentifierStore is the persisted record of every known identifier.
type IdentifierStore interface {
	// ExistsAny returns the subset of ids that already have a record, in any
	// status.
	ExistsAny(ctx context.Context, ids []string) (map[string]struct{}, error)
	// Upsert writes records, replacing any existing record with the same id.
	Upsert(ctx context.Context, records []sctid.Record) error
	// Get returns the record for id or a NOT_FOUND StoreError.
	Get(ctx context.Context, id string) (sctid.Record, error)
	// GetMany returns the records that exist among ids.
	GetMany(ctx context.Context, ids []string) (map[string]sctid.Record, error)

	// LoadCounter returns the sequential counter for (namespace, category).
	// A zero value means the counter was never set.
	LoadCounter(ctx context.Context, namespace string, cat sctid.Category) (uint64, error)
	// CompareAndSwapCounter sets the counter to next only if it currently
	// holds prev (zero for an unset counter).
	CompareAndSwapCounter(ctx context.Context, namespace string, cat sctid.Category, prev, next uint64) (bool, error)
	// MaxItemID returns the highest item id recorded for (namespace, category).
	MaxItemID(ctx context.Context, namespace string, cat sctid.Category) (uint64, bool, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options configures an on-disk backend.
type Options struct {
	NoSync bool // Disable fsync on writes (unsafe; tests and benchmarks only)
}

// Open opens the named backend under dataDir.
func Open(backend, dataDir string, opts Options) (IdentifierStore, error) {
	switch backend {
	case BackendPebble:
		s, err := OpenPebble(filepath.Join(dataDir, "pebble"), opts)
		if err != nil {
			return nil, fmt.Errorf("open pebble store: %w", err)
		}
		return s, nil
	case BackendBadger:
		s, err := OpenBadger(filepath.Join(dataDir, "badger"), opts)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(dataDir, opts)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store %q (expected pebble, badger, sqlite, or memory)", backend)
	}
}

func partition(cat sctid.Category) uint8 {
	return uint8(cat)
}
