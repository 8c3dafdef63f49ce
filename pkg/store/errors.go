package store

import "errors"

// Sentinel errors distinguishing "not yet written" (expected, e.g. on
// first boot) from genuine I/O failures, following the pack's
// ledger.ErrMetaNotFound / ErrAnchorMetaNotFound convention.
var (
	ErrStrategyNotFound = errors.New("store: strategy not found")
	ErrGlobalNotFound   = errors.New("store: global state not found")
)
