// Package sctid defines component identifiers: their namespaces, categories,
// item id bounds, the assembly/parse rules and the persisted lifecycle record.
//
// An identifier is laid out as
//
//	{itemId}{namespace-indicator}{partition}{check}
//
// where the namespace indicator is "0" for the international namespace and
// "{7-digit namespace}1" for an extension namespace.
package sctid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/user/sctid/internal/checksum"
)

const (
	MinLength = 6
	MaxLength = 18

	// NamespaceLength is the number of digits in an extension namespace.
	NamespaceLength = 7

	// International is the empty namespace.
	International = ""
)

var (
	ErrMalformed        = errors.New("malformed identifier")
	ErrChecksum         = errors.New("check digit mismatch")
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrItemIDRange      = errors.New("item id out of range")
)

// ValidateNamespace accepts the international namespace or a 7-digit
// extension namespace.
func ValidateNamespace(ns string) error {
	if ns == International {
		return nil
	}
	if len(ns) != NamespaceLength || !allDigits(ns) {
		return fmt.Errorf("%w: %q (want empty or %d digits)", ErrInvalidNamespace, ns, NamespaceLength)
	}
	return nil
}

// NamespaceLabel renders the namespace the way messages and logs show it.
func NamespaceLabel(ns string) string {
	if ns == International {
		return "INT"
	}
	return ns
}

func suffixLength(ns string) int {
	if ns == International {
		return 3
	}
	return NamespaceLength + 3
}

// MinItemID returns the smallest item id that still yields an identifier of
// MinLength digits in ns.
func MinItemID(ns string) uint64 {
	digits := MinLength - suffixLength(ns)
	if digits <= 1 {
		return 1
	}
	return pow10(digits - 1)
}

// MaxItemID returns the largest item id that fits into MaxLength digits in ns.
func MaxItemID(ns string) uint64 {
	return pow10(MaxLength-suffixLength(ns)) - 1
}

func pow10(n int) uint64 {
	v := uint64(1)
	for ; n > 0; n-- {
		v *= 10
	}
	return v
}

// Components is the parsed form of an identifier.
type Components struct {
	ItemID     uint64
	Namespace  string
	Category   Category
	CheckDigit int
}

// Assemble builds the identifier for itemID in namespace ns and category cat.
func Assemble(itemID uint64, ns string, cat Category) (string, error) {
	if err := ValidateNamespace(ns); err != nil {
		return "", err
	}
	if !cat.Valid() {
		return "", fmt.Errorf("%w: unknown category %d", ErrMalformed, uint8(cat))
	}
	if itemID < MinItemID(ns) || itemID > MaxItemID(ns) {
		return "", fmt.Errorf("%w: %d not in [%d, %d] for namespace %s",
			ErrItemIDRange, itemID, MinItemID(ns), MaxItemID(ns), NamespaceLabel(ns))
	}
	b := make([]byte, 0, MaxLength)
	b = strconv.AppendUint(b, itemID, 10)
	if ns == International {
		b = append(b, '0')
	} else {
		b = append(b, ns...)
		b = append(b, '1')
	}
	b = append(b, cat.PartitionDigit())
	check, err := checksum.Compute(string(b))
	if err != nil {
		return "", err
	}
	b = append(b, byte('0'+check))
	return string(b), nil
}

// MustAssemble is Assemble for inputs known to be valid.
func MustAssemble(itemID uint64, ns string, cat Category) string {
	id, err := Assemble(itemID, ns, cat)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse splits id into its components. The check digit is always
// re-validated; a mismatch is reported as ErrChecksum.
func Parse(id string) (Components, error) {
	n := len(id)
	if n < MinLength || n > MaxLength {
		return Components{}, fmt.Errorf("%w: %q has %d digits (want %d-%d)", ErrMalformed, id, n, MinLength, MaxLength)
	}
	if !allDigits(id) {
		return Components{}, fmt.Errorf("%w: %q contains non-digits", ErrMalformed, id)
	}
	if id[0] == '0' {
		return Components{}, fmt.Errorf("%w: %q has a leading zero", ErrMalformed, id)
	}
	if !checksum.Validate(id) {
		return Components{}, fmt.Errorf("%w: %q", ErrChecksum, id)
	}
	cat, ok := categoryFromPartition(id[n-2])
	if !ok {
		return Components{}, fmt.Errorf("%w: %q has unknown partition digit %q", ErrMalformed, id, id[n-2])
	}
	c := Components{Category: cat, CheckDigit: int(id[n-1] - '0')}
	var body string
	switch id[n-3] {
	case '0':
		body = id[:n-3]
	case '1':
		if n < NamespaceLength+4 {
			return Components{}, fmt.Errorf("%w: %q too short for an extension namespace", ErrMalformed, id)
		}
		c.Namespace = id[n-3-NamespaceLength : n-3]
		body = id[:n-3-NamespaceLength]
	default:
		return Components{}, fmt.Errorf("%w: %q has unknown namespace indicator %q", ErrMalformed, id, id[n-3])
	}
	if body == "" || body[0] == '0' {
		return Components{}, fmt.Errorf("%w: %q has an empty or zero-padded item id", ErrMalformed, id)
	}
	itemID, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return Components{}, fmt.Errorf("%w: %q: %v", ErrMalformed, id, err)
	}
	c.ItemID = itemID
	return c, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
