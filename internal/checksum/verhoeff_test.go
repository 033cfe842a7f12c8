package checksum

import (
	"strconv"
	"testing"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		digits string
		want   int
	}{
		{"236", 3},
		{"1000", 5},
		{"1010", 9},
		{"1020", 2},
		{"1980", 7},
		{"1990", 4},
		{"1100012910", 2},
		{"2100012910", 6},
		{"99999999999999900", 6},
	}
	for _, tt := range tests {
		got, err := Compute(tt.digits)
		if err != nil {
			t.Fatalf("Compute(%q) error: %v", tt.digits, err)
		}
		if got != tt.want {
			t.Errorf("Compute(%q) = %d, want %d", tt.digits, got, tt.want)
		}
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "12a4", " 123", "-1"} {
		if _, err := Compute(in); err == nil {
			t.Errorf("Compute(%q) expected error", in)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"2363", "100005", "101009", "11000129102", "999999999999999006"}
	for _, v := range valid {
		if !Validate(v) {
			t.Errorf("Validate(%q) = false, want true", v)
		}
	}
	invalid := []string{"", "1", "2364", "100006", "1x0005"}
	for _, v := range invalid {
		if Validate(v) {
			t.Errorf("Validate(%q) = true, want false", v)
		}
	}
}

func TestComputeValidateAgree(t *testing.T) {
	for i := 1; i < 5000; i += 7 {
		body := strconv.Itoa(i*37) + "0"
		d, err := Compute(body)
		if err != nil {
			t.Fatalf("Compute(%q): %v", body, err)
		}
		full := body + strconv.Itoa(d)
		if !Validate(full) {
			t.Fatalf("Validate(%q) = false for computed digit", full)
		}
	}
}

func TestDetectsSingleDigitErrors(t *testing.T) {
	full := "101009"
	for pos := 0; pos < len(full); pos++ {
		for d := byte('0'); d <= '9'; d++ {
			if d == full[pos] {
				continue
			}
			mutated := []byte(full)
			mutated[pos] = d
			if Validate(string(mutated)) {
				t.Errorf("single digit change %q not detected", mutated)
			}
		}
	}
}

func TestDetectsAdjacentTranspositions(t *testing.T) {
	full := "11000129102"
	for pos := 0; pos+1 < len(full); pos++ {
		if full[pos] == full[pos+1] {
			continue
		}
		mutated := []byte(full)
		mutated[pos], mutated[pos+1] = mutated[pos+1], mutated[pos]
		if Validate(string(mutated)) {
			t.Errorf("transposition %q not detected", mutated)
		}
	}
}
