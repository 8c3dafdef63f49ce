package recharge

import "errors"

// Sentinel errors for the Recharge Engine (C6), following the same
// "explicit error instead of a silent no-op" convention as pkg/strategy.
var (
	ErrSwapLocked           = errors.New("recharge: swap already in progress")
	ErrAboveCyclesThreshold = errors.New("recharge: cycles balance above recharging threshold, swap refused")
	ErrInsufficientCycles   = errors.New("recharge: attached cycles below minimum swap amount")
	ErrNoFundedEOA      = errors.New("recharge: no strategy EOA has sufficient ETH balance to mint")
	ErrTreasuryUnset    = errors.New("recharge: treasury identity not yet derived")
	ErrHalted           = errors.New("recharge: fleet is halted, recharge operations refused")
)
