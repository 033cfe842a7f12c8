package reservation

import (
	"cmp"
	"slices"
	"strings"

	"github.com/user/sctid/internal/sctid"
)

// anyExtension stands for every extension namespace not named by a range.
const anyExtension = "0000000"

// Validate checks r on its own and against the existing ranges.
//
// A new range may nest inside an existing one or sit beside it. It is
// rejected when it partially overlaps an applicable range, when it strictly
// contains one on both sides, or when together with the existing ranges it
// would leave no item id available for an affected namespace and category.
func Validate(r Range, existing []Range) error {
	if strings.TrimSpace(r.Name) == "" {
		return invalidf("reservation name must not be empty")
	}
	if r.LowerBound < 1 {
		return invalidf("reservation %q: lower bound must be at least 1", r.Name)
	}
	if r.LowerBound > r.UpperBound {
		return invalidf("reservation %q: lower bound %d exceeds upper bound %d", r.Name, r.LowerBound, r.UpperBound)
	}
	if len(r.Categories) == 0 {
		return invalidf("reservation %q: at least one category is required", r.Name)
	}
	for _, c := range r.Categories {
		if !c.Valid() {
			return invalidf("reservation %q: unknown category %d", r.Name, uint8(c))
		}
	}
	if r.Namespace != nil {
		if err := sctid.ValidateNamespace(*r.Namespace); err != nil {
			return invalidf("reservation %q: %v", r.Name, err)
		}
	}

	for _, e := range existing {
		if e.Name == r.Name {
			return invalidf("reservation %q already exists", r.Name)
		}
	}

	for _, e := range existing {
		if !r.sharesScope(e) || !r.overlaps(e) {
			continue
		}
		newInside := r.LowerBound >= e.LowerBound && r.UpperBound <= e.UpperBound
		if newInside {
			continue
		}
		if r.LowerBound < e.LowerBound && r.UpperBound > e.UpperBound {
			return invalidf("reservation %q [%d, %d] would enclose existing reservation %q [%d, %d]",
				r.Name, r.LowerBound, r.UpperBound, e.Name, e.LowerBound, e.UpperBound)
		}
		if r.LowerBound <= e.LowerBound && r.UpperBound >= e.UpperBound {
			// Shares one bound with e and extends past the other.
			return invalidf("reservation %q [%d, %d] would extend existing reservation %q [%d, %d]",
				r.Name, r.LowerBound, r.UpperBound, e.Name, e.LowerBound, e.UpperBound)
		}
		return invalidf("reservation %q [%d, %d] partially overlaps existing reservation %q [%d, %d]",
			r.Name, r.LowerBound, r.UpperBound, e.Name, e.LowerBound, e.UpperBound)
	}

	all := append(slices.Clone(existing), r)
	for _, ns := range affectedNamespaces(r, existing) {
		for _, cat := range r.Categories {
			if coversAll(all, ns, cat) {
				return invalidf("reservation %q leaves no item ids available for %s %s",
					r.Name, cat, scopeLabel(ns))
			}
		}
	}
	return nil
}

func scopeLabel(ns string) string {
	if ns == anyExtension {
		return "extension namespaces"
	}
	return "namespace " + sctid.NamespaceLabel(ns)
}

// affectedNamespaces lists the namespaces whose free space r can shrink.
func affectedNamespaces(r Range, existing []Range) []string {
	if r.Namespace != nil {
		return []string{*r.Namespace}
	}
	out := []string{sctid.International, anyExtension}
	for _, e := range existing {
		if e.Namespace != nil && !slices.Contains(out, *e.Namespace) {
			out = append(out, *e.Namespace)
		}
	}
	return out
}

func appliesIn(r Range, ns string, cat sctid.Category) bool {
	if ns == anyExtension {
		return r.Namespace == nil && slices.Contains(r.Categories, cat)
	}
	return r.AppliesTo(ns, cat)
}

// coversAll reports whether the applicable ranges leave no item id free in
// [MinItemID, MaxItemID] for (ns, cat).
func coversAll(ranges []Range, ns string, cat sctid.Category) bool {
	lo, hi := sctid.MinItemID(ns), sctid.MaxItemID(ns)
	var spans []Range
	for _, r := range ranges {
		if appliesIn(r, ns, cat) && r.UpperBound >= lo && r.LowerBound <= hi {
			spans = append(spans, r)
		}
	}
	slices.SortFunc(spans, func(a, b Range) int { return cmp.Compare(a.LowerBound, b.LowerBound) })
	next := lo
	for _, s := range spans {
		if s.LowerBound > next {
			return false
		}
		if s.UpperBound >= hi {
			return true
		}
		if s.UpperBound+1 > next {
			next = s.UpperBound + 1
		}
	}
	return false
}
