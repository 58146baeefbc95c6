package override

import "fmt"

// Kind enumerates the override strategies.
type Kind int

const (
	// ReplaceReturnValue makes the method return the payload; the original
	// body does not run unless the strategy wraps it.
	ReplaceReturnValue Kind = iota + 1
	// ReplaceFieldBeforeCall overwrites fields before the original body runs.
	ReplaceFieldBeforeCall
	// ReplaceFieldAfterCall overwrites fields after the original body runs.
	ReplaceFieldAfterCall
	// ResetCachedState re-asserts fields and invokes a reset operation once
	// per payload generation.
	ResetCachedState
)

var kindNames = map[Kind]string{
	ReplaceReturnValue:     "ReplaceReturnValue",
	ReplaceFieldBeforeCall: "ReplaceFieldBeforeCall",
	ReplaceFieldAfterCall:  "ReplaceFieldAfterCall",
	ResetCachedState:       "ResetCachedState",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a kind name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, s)
}
