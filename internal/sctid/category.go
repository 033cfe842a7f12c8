package sctid

import (
	"fmt"
	"strings"
)

// Category is the kind of terminology component an identifier is minted for.
type Category uint8

const (
	Concept Category = iota
	Description
	Relationship
)

// Categories lists every supported category in partition order.
var Categories = []Category{Concept, Description, Relationship}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c <= Relationship
}

// PartitionDigit returns the single partition digit written into identifiers.
func (c Category) PartitionDigit() byte {
	return '0' + byte(c)
}

func (c Category) String() string {
	switch c {
	case Concept:
		return "CONCEPT"
	case Description:
		return "DESCRIPTION"
	case Relationship:
		return "RELATIONSHIP"
	default:
		return fmt.Sprintf("CATEGORY(%d)", uint8(c))
	}
}

// ParseCategory accepts a category name in any case or its partition digit.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONCEPT", "0":
		return Concept, nil
	case "DESCRIPTION", "1":
		return Description, nil
	case "RELATIONSHIP", "2":
		return Relationship, nil
	}
	return 0, fmt.Errorf("unknown component category %q", s)
}

func categoryFromPartition(d byte) (Category, bool) {
	if d < '0' || d > '9' {
		return 0, false
	}
	c := Category(d - '0')
	return c, c.Valid()
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown component category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
