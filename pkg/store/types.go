package store

import (
	"encoding/binary"
	"time"
)

// Strategy is the full persisted tuple for one managed batch: settings
// (immutable after mint_strategy), mutable rate/nonce state, and the
// cooperative lock flag (SPEC_FULL.md §3, §5).
type Strategy struct {
	Key uint32

	// Settings, immutable once non-zero.
	ManagerAddress          string
	HintHelperAddress       string
	MultiTroveGetterAddress string
	SortedTrovesAddress     string
	CollateralRegistryAddr  string
	CollateralIndex         uint32
	UpfrontFeePeriodSec     int64
	TargetMinDebtFraction   string // decimal string, e18
	BatchManagerAddress     string // set exactly once by set_batch_manager
	RPCPrincipal            string
	EOAPublicKeyHex         string
	EOAAddress              string

	// Mutable state.
	LatestRate   string // e18 decimal string
	LastUpdate   int64  // unix seconds
	LastOkExit   int64  // unix seconds
	EOANonce     uint64

	// Lock.
	IsLocked     bool
	LastLockedAt int64 // unix seconds, zero if never locked
}

// LockTimedOut reports whether the strategy's lock, if held, has
// exceeded timeout as of now — the §5 "flip to available" condition.
func (s *Strategy) LockTimedOut(now time.Time, timeout time.Duration) bool {
	if !s.IsLocked {
		return true
	}
	return now.Sub(time.Unix(s.LastLockedAt, 0)) >= timeout
}

// HaltState is the tagged variant of §3's global halting lifecycle.
type HaltState struct {
	Phase    string // "Functional" | "HaltingInProgress" | "Halted"
	HaltsAt  int64  // unix seconds, meaningful only in HaltingInProgress
	HaltedAt int64  // unix seconds, meaningful only in Halted
}

// ProviderReputation is one entry of the global reputation map.
type ProviderReputation struct {
	Name  string
	Score int
}

// GlobalState is the single process-wide record of §3: journal sequence
// number, ckETH mint cursor, recharge swap lock, halting state, and RPC
// provider reputation — all persisted so a restart resumes rather than
// resets the fleet.
type GlobalState struct {
	NextJournalSeq uint64
	StrategyCount  uint32 // high-water mark set once by start(n)
	MintCursor     uint32 // round-robin index into the strategy key list
	SwapLocked     bool
	Halt           HaltState
	Reputation     []ProviderReputation

	ControllersBlackholed bool // set by start_timers; once true, start_timers fails on retry

	// TreasuryAddress is the agent's own EOA (distinct from any
	// strategy's), holding ckETH and receiving mint credits. Derived
	// once, analogous to assign_keys for a strategy.
	TreasuryAddress       string
	TreasuryPublicKeyHex  string

	// CyclesBalance is the process-local analogue of a canister's
	// compute-credit balance (§4.4's swap_cketh precondition/accounting).
	CyclesBalance uint64
}

func strategyKeyBytes(key uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, key)
	return b
}
