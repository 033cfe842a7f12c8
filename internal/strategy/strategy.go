// Package strategy proposes candidate item ids for allocation.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
)

// ErrNoItemIDs means no further unreserved item ids can be proposed for a
// namespace and category.
var ErrNoItemIDs = errors.New("no unreserved item ids left to propose")

// Strategy proposes item ids for allocation.
type Strategy interface {
	// Propose returns quantity distinct item ids for (ns, cat), none of them
	// inside an applicable reservation. attempt is the zero-based retry
	// index within one allocation.
	Propose(ctx context.Context, ns string, cat sctid.Category, quantity, attempt int) ([]uint64, error)
}

// Reservations is the read side of a reservation registry.
type Reservations interface {
	Applicable(ns string, cat sctid.Category) []reservation.Range
}

// CounterStore persists the Sequential counters.
type CounterStore interface {
	LoadCounter(ctx context.Context, ns string, cat sctid.Category) (uint64, error)
	CompareAndSwapCounter(ctx context.Context, ns string, cat sctid.Category, prev, next uint64) (bool, error)
	MaxItemID(ctx context.Context, ns string, cat sctid.Category) (uint64, bool, error)
}

// Strategy names accepted by New.
const (
	NameSequential = "sequential"
	NameRandom     = "random"
)

// New returns the named strategy.
func New(name string, counters CounterStore, reservations Reservations) (Strategy, error) {
	switch name {
	case NameSequential, "":
		return NewSequential(counters, reservations), nil
	case NameRandom:
		return NewRandom(reservations), nil
	default:
		return nil, fmt.Errorf("unsupported strategy %q (expected sequential or random)", name)
	}
}

func noItemIDs(ns string, cat sctid.Category) error {
	return fmt.Errorf("%w [%s, %s]", ErrNoItemIDs, cat, sctid.NamespaceLabel(ns))
}
