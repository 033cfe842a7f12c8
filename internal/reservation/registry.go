package reservation

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/user/sctid/internal/sctid"
)

// Registry stores reservation ranges.
type Registry interface {
	Create(ctx context.Context, r Range) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Range, error)

	// IsReserved reports whether any applicable range covers itemID.
	IsReserved(ns string, cat sctid.Category, itemID uint64) bool
	// Applicable returns the ranges that constrain (ns, cat), ordered by
	// lower bound.
	Applicable(ns string, cat sctid.Category) []Range
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	ranges []Range
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

func (m *MemoryRegistry) Create(_ context.Context, r Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := Validate(r, m.ranges); err != nil {
		return err
	}
	m.ranges = append(m.ranges, r.clone())
	return nil
}

func (m *MemoryRegistry) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.ranges, func(r Range) bool { return r.Name == name })
	if i < 0 {
		return notFound(name)
	}
	m.ranges = slices.Delete(m.ranges, i, i+1)
	return nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]Range, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSorted(m.ranges), nil
}

func (m *MemoryRegistry) IsReserved(ns string, cat sctid.Category, itemID uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.ranges {
		if r.AppliesTo(ns, cat) && r.Covers(itemID) {
			return true
		}
	}
	return false
}

func (m *MemoryRegistry) Applicable(ns string, cat sctid.Category) []Range {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Range
	for _, r := range m.ranges {
		if r.AppliesTo(ns, cat) {
			out = append(out, r.clone())
		}
	}
	slices.SortFunc(out, compareRanges)
	return out
}

// replace swaps the whole range set. Used by FileRegistry after reloading.
func (m *MemoryRegistry) replace(ranges []Range) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = cloneSorted(ranges)
}

func compareRanges(a, b Range) int {
	if c := cmp.Compare(a.LowerBound, b.LowerBound); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func cloneSorted(ranges []Range) []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.clone())
	}
	slices.SortFunc(out, compareRanges)
	return out
}

// Skip returns the first item id at or after itemID that no range in
// applicable covers, and false if every id up to max is covered. applicable
// must come from Registry.Applicable.
func Skip(applicable []Range, itemID, max uint64) (uint64, bool) {
	for moved := true; moved; {
		moved = false
		for _, r := range applicable {
			if r.Covers(itemID) {
				if r.UpperBound >= max {
					return 0, false
				}
				itemID = r.UpperBound + 1
				moved = true
			}
		}
	}
	return itemID, itemID <= max
}
