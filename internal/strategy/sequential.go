package strategy

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
)

const counterSwapRetries = 16

// Sequential walks item ids upward from a persisted per (namespace,
// category) counter, skipping reserved ranges and wrapping from the maximum
// item id back to the minimum.
//
// Attempt a starts at counter+1+a², so a retry after collisions with
// registered ids jumps quadratically further ahead. After each proposal the
// counter holds the last id proposed.
type Sequential struct {
	counters     CounterStore
	reservations Reservations
}

// NewSequential returns a Sequential strategy.
func NewSequential(counters CounterStore, reservations Reservations) *Sequential {
	return &Sequential{counters: counters, reservations: reservations}
}

func (s *Sequential) Propose(ctx context.Context, ns string, cat sctid.Category, quantity, attempt int) ([]uint64, error) {
	lo, hi := sctid.MinItemID(ns), sctid.MaxItemID(ns)
	applicable := s.reservations.Applicable(ns, cat)

	for i := 0; i < counterSwapRetries; i++ {
		stored, err := s.counters.LoadCounter(ctx, ns, cat)
		if err != nil {
			return nil, err
		}
		counter := stored
		if counter == 0 {
			counter, err = s.seed(ctx, ns, cat, lo)
			if err != nil {
				return nil, err
			}
		}

		ids, last, err := walk(startingPoint(counter, attempt, lo, hi), quantity, lo, hi, applicable)
		if err != nil {
			return nil, noItemIDs(ns, cat)
		}
		swapped, err := s.counters.CompareAndSwapCounter(ctx, ns, cat, stored, last)
		if err != nil {
			return nil, err
		}
		if swapped {
			return ids, nil
		}
	}
	return nil, fmt.Errorf("counter for [%s, %s] changed concurrently %d times", cat, sctid.NamespaceLabel(ns), counterSwapRetries)
}

// seed picks the counter for a (namespace, category) pair that has none:
// just below the minimum item id, or the highest item id already recorded.
func (s *Sequential) seed(ctx context.Context, ns string, cat sctid.Category, lo uint64) (uint64, error) {
	max, ok, err := s.counters.MaxItemID(ctx, ns, cat)
	if err != nil {
		return 0, err
	}
	if ok && max >= lo {
		return max, nil
	}
	return lo - 1, nil
}

func startingPoint(counter uint64, attempt int, lo, hi uint64) uint64 {
	span := hi - lo + 1
	if counter < lo-1 || counter > hi {
		counter = lo - 1
	}
	a := uint64(attempt) % span
	// a² can exceed 64 bits for large attempt budgets; a < span keeps the
	// high word below span, as Div64 requires.
	sqHi, sqLo := bits.Mul64(a, a)
	_, offset := bits.Div64(sqHi, sqLo, span)
	pos := (counter - (lo - 1) + offset) % span // zero-based position of counter+1+offset
	return lo + pos
}

// walk collects quantity unreserved ids from start, wrapping past hi. It
// fails once every position in [lo, hi] has been passed.
func walk(start uint64, quantity int, lo, hi uint64, applicable []reservation.Range) ([]uint64, uint64, error) {
	span := hi - lo + 1
	ids := make([]uint64, 0, quantity)
	var (
		visited uint64
		last    uint64
	)
	cur := start
	for len(ids) < quantity {
		if visited >= span {
			return nil, 0, ErrNoItemIDs
		}
		next, ok := reservation.Skip(applicable, cur, hi)
		if !ok {
			visited += hi - cur + 1
			cur = lo
			continue
		}
		visited += next - cur + 1
		ids = append(ids, next)
		last = next
		if next == hi {
			cur = lo
		} else {
			cur = next + 1
		}
	}
	return ids, last, nil
}
