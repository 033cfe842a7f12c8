// Package reservation manages named item-id ranges that generation must
// never hand out.
package reservation

import (
	"slices"

	"github.com/user/sctid/internal/sctid"
)

// Range excludes the inclusive interval [LowerBound, UpperBound] of item ids
// from generation for Categories. A nil Namespace applies to every namespace.
type Range struct {
	Name       string           `json:"name" yaml:"name"`
	LowerBound uint64           `json:"lowerBound" yaml:"lowerBound"`
	UpperBound uint64           `json:"upperBound" yaml:"upperBound"`
	Namespace  *string          `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Categories []sctid.Category `json:"categories" yaml:"categories"`
}

// Namespaced returns a pointer to ns for Range.Namespace.
func Namespaced(ns string) *string {
	return &ns
}

// AllNamespaces reports whether the range applies to every namespace.
func (r Range) AllNamespaces() bool {
	return r.Namespace == nil
}

// NamespaceLabel renders the range scope for messages.
func (r Range) NamespaceLabel() string {
	if r.Namespace == nil {
		return "*"
	}
	return sctid.NamespaceLabel(*r.Namespace)
}

// CategoryLabels returns the category names, for logs and tables.
func (r Range) CategoryLabels() []string {
	out := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		out[i] = c.String()
	}
	return out
}

// AppliesTo reports whether the range constrains (ns, cat).
func (r Range) AppliesTo(ns string, cat sctid.Category) bool {
	if r.Namespace != nil && *r.Namespace != ns {
		return false
	}
	return slices.Contains(r.Categories, cat)
}

// Covers reports whether itemID falls inside the range bounds.
func (r Range) Covers(itemID uint64) bool {
	return itemID >= r.LowerBound && itemID <= r.UpperBound
}

// sharesScope reports whether r and o can apply to the same (namespace,
// category) pair.
func (r Range) sharesScope(o Range) bool {
	if r.Namespace != nil && o.Namespace != nil && *r.Namespace != *o.Namespace {
		return false
	}
	for _, c := range r.Categories {
		if slices.Contains(o.Categories, c) {
			return true
		}
	}
	return false
}

func (r Range) overlaps(o Range) bool {
	return r.LowerBound <= o.UpperBound && o.LowerBound <= r.UpperBound
}

// Equal reports whether r and o define the same reservation.
func (r Range) Equal(o Range) bool {
	if r.Name != o.Name || r.LowerBound != o.LowerBound || r.UpperBound != o.UpperBound {
		return false
	}
	if (r.Namespace == nil) != (o.Namespace == nil) {
		return false
	}
	if r.Namespace != nil && *r.Namespace != *o.Namespace {
		return false
	}
	a := slices.Clone(r.Categories)
	b := slices.Clone(o.Categories)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func (r Range) clone() Range {
	out := r
	out.Categories = slices.Clone(r.Categories)
	if r.Namespace != nil {
		out.Namespace = Namespaced(*r.Namespace)
	}
	return out
}
