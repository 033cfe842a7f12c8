// Package checksum implements the Verhoeff check digit scheme used by
// component identifiers.
package checksum

import "fmt"

// Dihedral group D5 multiplication table.
var multiplication = [10][10]uint8{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

// Position-dependent permutation table; row i is applied to the digit at
// position i (mod 8), counting from the right.
var permutation = [8][10]uint8{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

var inverse = [10]uint8{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

// Compute returns the Verhoeff check digit for digits. The check digit is
// not part of the input.
func Compute(digits string) (int, error) {
	if digits == "" {
		return 0, fmt.Errorf("checksum: empty input")
	}
	var c uint8
	n := len(digits)
	for i := 0; i < n; i++ {
		ch := digits[n-1-i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("checksum: non-digit %q at offset %d", ch, n-1-i)
		}
		// Offset by one: position 0 is reserved for the check digit itself.
		c = multiplication[c][permutation[(i+1)%8][ch-'0']]
	}
	return int(inverse[c]), nil
}

// Validate reports whether full, whose last character is a check digit,
// carries a correct Verhoeff check digit.
func Validate(full string) bool {
	if len(full) < 2 {
		return false
	}
	var c uint8
	n := len(full)
	for i := 0; i < n; i++ {
		ch := full[n-1-i]
		if ch < '0' || ch > '9' {
			return false
		}
		c = multiplication[c][permutation[i%8][ch-'0']]
	}
	return c == 0
}
