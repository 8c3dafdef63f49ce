package strategy

import (
	"errors"

	"github.com/liquity/ir-agent/pkg/ratemath"
)

// Sentinel errors matching SPEC_FULL.md §4.3.1's error taxonomy,
// following the retrieval pack's "explicit errors instead of nil, nil
// returns" convention.
var (
	ErrLocked           = errors.New("strategy: locked")
	ErrUnauthorized     = errors.New("strategy: unauthorized")
	ErrNonExistentValue = errors.New("strategy: non-existent value")
	ErrHalted           = errors.New("strategy: halted")
)

// CustomError wraps a detail string for error conditions the spec
// groups under Custom{detail} — anything not covered by a dedicated
// sentinel.
type CustomError struct {
	Detail string
}

func (e *CustomError) Error() string { return "strategy: " + e.Detail }

func errKindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocked):
		return "Locked"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrNonExistentValue):
		return "NonExistentValue"
	case errors.Is(err, ErrHalted):
		return "Halted"
	case errors.Is(err, ratemath.ErrArithmetic):
		return "Arithmetic"
	default:
		var custom *CustomError
		if errors.As(err, &custom) {
			return "Custom"
		}
		return "RpcResponseError"
	}
}
