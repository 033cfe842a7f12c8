package sctid

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an identifier. Available is implicit: it
// is never persisted, an unknown identifier is simply available.
type Status uint8

const (
	Available Status = iota
	Assigned
	Published
	Deprecated
)

var statusNames = [...]string{"Available", "Assigned", "Published", "Deprecated"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(v string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, strings.TrimSpace(v)) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown identifier status %q", v)
}

// CanTransition reports whether a record in status s may move to next.
// Moving to the current status is not a transition; callers treat it as a
// no-op.
func (s Status) CanTransition(next Status) bool {
	switch next {
	case Assigned:
		return s == Available
	case Published:
		return s == Available || s == Assigned
	case Deprecated:
		return s == Assigned || s == Published
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
