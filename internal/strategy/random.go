package strategy

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/sctid"
)

// Random draws item ids uniformly from the unreserved part of a namespace's
// legal range. It keeps no counter state.
type Random struct {
	reservations Reservations

	mu  sync.Mutex
	rng *rand.Rand
}

type RandomOption func(*Random)

// WithSeed makes the draw sequence reproducible.
func WithSeed(seed uint64) RandomOption {
	return func(r *Random) {
		r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewRandom returns a Random strategy seeded from the runtime source unless
// WithSeed is given.
func NewRandom(reservations Reservations, opts ...RandomOption) *Random {
	r := &Random{reservations: reservations}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r
}

func (r *Random) Propose(_ context.Context, ns string, cat sctid.Category, quantity, _ int) ([]uint64, error) {
	free := freeSpans(r.reservations.Applicable(ns, cat), sctid.MinItemID(ns), sctid.MaxItemID(ns))
	if free.size() < uint64(quantity) {
		return nil, noItemIDs(ns, cat)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Floyd's sampling: quantity distinct ranks out of free.size().
	n, k := free.size(), uint64(quantity)
	picked := make(map[uint64]struct{}, quantity)
	ids := make([]uint64, 0, quantity)
	for j := n - k; j < n; j++ {
		rank := r.rng.Uint64N(j + 1)
		if _, taken := picked[rank]; taken {
			rank = j
		}
		picked[rank] = struct{}{}
		ids = append(ids, free.at(rank))
	}
	r.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids, nil
}

// freeRun is an inclusive run of unreserved item ids. before counts the free
// ids in all earlier runs.
type freeRun struct {
	lo, hi uint64
	before uint64
}

type freeRuns []freeRun

// freeSpans returns [lo, hi] minus every applicable range.
func freeSpans(applicable []reservation.Range, lo, hi uint64) freeRuns {
	applicable = slices.Clone(applicable)
	slices.SortFunc(applicable, func(a, b reservation.Range) int { return cmp.Compare(a.LowerBound, b.LowerBound) })

	var (
		out   freeRuns
		total uint64
	)
	add := func(from, to uint64) {
		out = append(out, freeRun{lo: from, hi: to, before: total})
		total += to - from + 1
	}
	next := lo
	for _, rr := range applicable {
		if rr.LowerBound > hi {
			break
		}
		if rr.UpperBound < next {
			continue
		}
		if rr.LowerBound > next {
			add(next, rr.LowerBound-1)
		}
		if rr.UpperBound >= hi {
			return out
		}
		next = rr.UpperBound + 1
	}
	add(next, hi)
	return out
}

func (s freeRuns) size() uint64 {
	if len(s) == 0 {
		return 0
	}
	last := s[len(s)-1]
	return last.before + last.hi - last.lo + 1
}

// at maps a zero-based rank among the free ids to its item id.
func (s freeRuns) at(rank uint64) uint64 {
	i := sort.Search(len(s), func(i int) bool { return s[i].before > rank }) - 1
	return s[i].lo + rank - s[i].before
}
