// Package strategy implements the Strategy Engine (C5): the hourly
// rate-policy evaluation and atomic per-strategy execution described in
// SPEC_FULL.md §4.3, grounded on the retrieval pack's
// pkg/execution/executor.go wiring shape (adapters over the read-only
// contract callers, one logger-carrying struct orchestrating a
// multi-step on-chain operation) and pkg/execution/nonce_tracker.go's
// retry/backoff idiom, generalized from Accumulate sequence numbers to
// an EVM EOA nonce.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/contracts"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/ratemath"
	"github.com/liquity/ir-agent/pkg/rpcpool"
	"github.com/liquity/ir-agent/pkg/signer"
	"github.com/liquity/ir-agent/pkg/store"
)

// HaltChecker reports whether the Halting Supervisor (C7) has moved the
// fleet into the Halted phase, in which case no execution may proceed.
type HaltChecker interface {
	IsHalted() bool
}

// alwaysFunctional is the default HaltChecker when none is wired,
// matching a deployment that hasn't started the halting supervisor yet.
type alwaysFunctional struct{}

func (alwaysFunctional) IsHalted() bool { return false }

const (
	maxTrovesFetched = 10_000
	hintNumTrials    = 15
	secondsPerYear   = 31_536_000
)

// Engine evaluates and executes the rate policy for one strategy at a
// time, serialized per key by the Stable Store's lock flag (§5). It
// holds no per-strategy state of its own: every field it reads or
// writes flows through store.Store so a restart resumes mid-fleet
// without replaying history.
type Engine struct {
	store   *store.Store
	journal *journal.Journal
	pool    *rpcpool.Pool
	caller  bind.ContractCaller
	gateway signer.Gateway
	feeSrc  signer.FeeHistorySource

	chainID *big.Int
	halt    HaltChecker

	lockTimeout       time.Duration
	receiptPoll       time.Duration
	receiptBudget     time.Duration
	nonceRetryMax     int
	nonceRetryBase    time.Duration
	nonceRetryCap     time.Duration
	minConsensus      int
	decreaseMarginBps int64
	increaseMarginBps int64
	gasLimit          uint64

	logger *log.Logger
}

// Config bundles the constructor's dependencies and tunables, which
// callers assemble from config.AgentConfig's Constants block (§10.3) so
// none of these are literals buried in the engine.
type Config struct {
	Store   *store.Store
	Journal *journal.Journal
	Pool    *rpcpool.Pool
	Gateway signer.Gateway
	ChainID *big.Int
	Halt    HaltChecker

	Constants config.SystemConstants

	GasLimit uint64
	Logger   *log.Logger
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[StrategyEngine] ", log.LstdFlags)
	}
	halt := cfg.Halt
	if halt == nil {
		halt = alwaysFunctional{}
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 500_000
	}
	minConsensus := cfg.Constants.RPCConsensusDefault
	if minConsensus == 0 {
		minConsensus = 3
	}

	caller := &rpcpool.ContractCaller{Pool: cfg.Pool, MinConsensus: minConsensus}
	feeSrc := &signer.PoolFeeHistorySource{Pool: cfg.Pool, MinConsensus: minConsensus}

	e := &Engine{
		store:             cfg.Store,
		journal:           cfg.Journal,
		pool:              cfg.Pool,
		caller:            caller,
		gateway:           cfg.Gateway,
		feeSrc:            feeSrc,
		chainID:           cfg.ChainID,
		halt:              halt,
		lockTimeout:       durOr(cfg.Constants.StrategyLockTimeout.Duration, 3600*time.Second),
		receiptPoll:       durOr(cfg.Constants.ReceiptPollInterval.Duration, 15*time.Second),
		receiptBudget:     durOr(cfg.Constants.ReceiptWaitBudget.Duration, 5*time.Minute),
		nonceRetryMax:     intOr(cfg.Constants.NonceRetryMax, 3),
		nonceRetryBase:    durOr(cfg.Constants.NonceRetryBaseBackoff.Duration, 2*time.Second),
		nonceRetryCap:     durOr(cfg.Constants.NonceRetryMaxBackoff.Duration, 30*time.Second),
		minConsensus:      minConsensus,
		decreaseMarginBps: int64(intOr(cfg.Constants.MuBps, 2500)),
		increaseMarginBps: int64(intOr(cfg.Constants.MdBps, 2500)),
		gasLimit:          gasLimit,
		logger:            logger,
	}
	return e
}

func durOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Execute is the public contract of §4.3.1: idempotent, safe across
// concurrent keys, at-most-one in flight per key via the store's lock.
func (e *Engine) Execute(ctx context.Context, key uint32) error {
	if e.halt.IsHalted() {
		return ErrHalted
	}

	now := time.Now()
	st, err := e.acquireLock(key, now)
	if err != nil {
		return err
	}
	defer e.releaseLock(key)

	execErr := e.run(ctx, st, now)
	if execErr != nil {
		e.logger.Printf("strategy %d: execution failed: %v", key, execErr)
		_ = e.journal.AppendExecutionResult(key, false, errKindOf(execErr), execErr.Error())
		return execErr
	}
	return nil
}

// acquireLock implements §5's single atomic acquisition step: observe
// availability (never locked, or locked past the hard timeout), then
// flip the flag and stamp the time, all inside one Store mutation.
func (e *Engine) acquireLock(key uint32, now time.Time) (*store.Strategy, error) {
	var acquired store.Strategy
	err := e.store.MutateStrategy(key, func(st *store.Strategy) error {
		if st.BatchManagerAddress == "" || st.EOAAddress == "" {
			return ErrUnauthorized
		}
		if st.IsLocked && !st.LockTimedOut(now, e.lockTimeout) {
			return ErrLocked
		}
		st.IsLocked = true
		st.LastLockedAt = now.Unix()
		acquired = *st
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStrategyNotFound) {
			return nil, ErrNonExistentValue
		}
		return nil, err
	}
	return &acquired, nil
}

func (e *Engine) releaseLock(key uint32) {
	if err := e.store.MutateStrategy(key, func(st *store.Strategy) error {
		st.IsLocked = false
		return nil
	}); err != nil {
		e.logger.Printf("strategy %d: failed to release lock: %v", key, err)
	}
}

// run implements steps 2-8 of §4.3.2 against a snapshot of the
// strategy taken at lock-acquisition time. It re-reads the strategy
// immediately before any persisting write, since awaited RPC/signer
// calls are suspension points after which cached state may be stale
// (§5's "re-check invariants across suspension points").
func (e *Engine) run(ctx context.Context, st *store.Strategy, now time.Time) error {
	branch, err := e.fetchBranchState(ctx, st)
	if err != nil {
		return err
	}

	params, err := e.policyParams(st)
	if err != nil {
		return err
	}

	result, err := ratemath.Evaluate(*branch, *params, now.Unix())
	if err != nil {
		return err
	}

	switch result.Decision {
	case ratemath.DecisionNone:
		return e.commitNoOp(st.Key, result, now)
	default:
		return e.commitRateChange(ctx, st, branch, result, now)
	}
}

// fetchBranchState implements step 2: one logical batch of reads
// through the RPC Provider Pool's consensus caller.
func (e *Engine) fetchBranchState(ctx context.Context, st *store.Strategy) (*ratemath.BranchState, error) {
	opts := &bind.CallOpts{Context: ctx}
	collIdx := big.NewInt(int64(st.CollateralIndex))
	managerAddr := common.HexToAddress(st.BatchManagerAddress)

	mtg, err := contracts.NewMultiTroveGetterCaller(common.HexToAddress(st.MultiTroveGetterAddress), e.caller)
	if err != nil {
		return nil, fmt.Errorf("binding multi trove getter: %w", err)
	}
	rawTroves, err := mtg.GetMultipleSortedTroves(opts, collIdx, big.NewInt(0), big.NewInt(maxTrovesFetched))
	if err != nil {
		return nil, fmt.Errorf("%w: getMultipleSortedTroves: %v", rpcpool.ErrNoConsensus, err)
	}

	cr, err := contracts.NewCollateralRegistryCaller(common.HexToAddress(st.CollateralRegistryAddr), e.caller)
	if err != nil {
		return nil, fmt.Errorf("binding collateral registry: %w", err)
	}
	redemptionRate, err := cr.GetRedemptionRateWithDecay(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: getRedemptionRateWithDecay: %v", rpcpool.ErrNoConsensus, err)
	}
	totalDebt, err := cr.TotalBoldDebt(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: totalBoldDebt: %v", rpcpool.ErrNoConsensus, err)
	}
	totalUnbacked, err := cr.TotalUnbacked(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: totalUnbacked: %v", rpcpool.ErrNoConsensus, err)
	}
	unbackedPortion, err := cr.UnbackedPortion(opts, collIdx)
	if err != nil {
		return nil, fmt.Errorf("%w: unbackedPortion: %v", rpcpool.ErrNoConsensus, err)
	}

	tm, err := contracts.NewTroveManagerCaller(common.HexToAddress(st.ManagerAddress), e.caller)
	if err != nil {
		return nil, fmt.Errorf("binding trove manager: %w", err)
	}
	batchData, err := tm.GetLatestBatchData(opts, managerAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: getLatestBatchData: %v", rpcpool.ErrNoConsensus, err)
	}

	troves := make([]ratemath.Trove, 0, len(rawTroves))
	var headID uint64
	haveHead := false
	for _, t := range rawTroves {
		rate, overflow := uint256.FromBig(t.AnnualInterestRate)
		if overflow {
			return nil, &ratemath.ArithError{Detail: "trove interest rate does not fit in 256 bits"}
		}
		debt, overflow := uint256.FromBig(t.EntireDebt)
		if overflow {
			return nil, &ratemath.ArithError{Detail: "trove entire debt does not fit in 256 bits"}
		}
		troves = append(troves, ratemath.Trove{ID: t.Id.Uint64(), InterestRate: rate, EntireDebt: debt})
		if !haveHead && t.BatchManager == managerAddr {
			headID = t.Id.Uint64()
			haveHead = true
		}
	}

	curRate, overflow := uint256.FromBig(batchData.AnnualInterestRate)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "batch annual interest rate does not fit in 256 bits"}
	}
	entireDebt, overflow := uint256.FromBig(new(big.Int).Add(batchData.EntireDebtWithoutRedistribution, batchData.AccruedInterest))
	if overflow {
		return nil, &ratemath.ArithError{Detail: "batch entire debt does not fit in 256 bits"}
	}
	weightedDebt, overflow := uint256.FromBig(batchData.WeightedRecordedDebt)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "batch weighted recorded debt does not fit in 256 bits"}
	}

	var avgRate *uint256.Int
	if entireDebt.IsZero() {
		avgRate = new(uint256.Int)
	} else {
		avgRate, err = ratemath.Div(weightedDebt, entireDebt)
		if err != nil {
			return nil, err
		}
	}

	rFee, overflow := uint256.FromBig(redemptionRate)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "redemption rate does not fit in 256 bits"}
	}
	tDebt, overflow := uint256.FromBig(totalDebt)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "total bold debt does not fit in 256 bits"}
	}
	tUnbacked, overflow := uint256.FromBig(totalUnbacked)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "total unbacked does not fit in 256 bits"}
	}
	uPortion, overflow := uint256.FromBig(unbackedPortion)
	if overflow {
		return nil, &ratemath.ArithError{Detail: "unbacked portion does not fit in 256 bits"}
	}

	return &ratemath.BranchState{
		SortedTroves:      troves,
		RedemptionFee:     rFee,
		TotalBoldDebt:     tDebt,
		TotalUnbacked:     tUnbacked,
		UnbackedPortion:   uPortion,
		BatchCurrentRate:  curRate,
		BatchAvgRate:      avgRate,
		BatchDebt:         entireDebt,
		BatchHeadTroveID:  headID,
		LastUpdate:        batchData.LastDebtUpdateTime.Int64(),
	}, nil
}

func (e *Engine) policyParams(st *store.Strategy) (*ratemath.PolicyParams, error) {
	dMin, err := parseE18(st.TargetMinDebtFraction)
	if err != nil {
		return nil, &ratemath.ArithError{Detail: fmt.Sprintf("parsing target_min_debt_fraction: %v", err)}
	}
	return &ratemath.PolicyParams{
		TargetMinDebtFraction: dMin,
		UpfrontFeePeriodSec:   st.UpfrontFeePeriodSec,
		IncreaseMarginBps:     e.increaseMarginBps,
		DecreaseMarginBps:     e.decreaseMarginBps,
	}, nil
}

func parseE18(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// commitNoOp implements the "no chain transaction was needed" success
// path of §4.3.1: last_ok_exit advances regardless of decision (§9
// open question b), latest_rate/last_update are untouched, and the
// RateAdjustment journal entry still records the evaluation that led
// here.
func (e *Engine) commitNoOp(key uint32, result *ratemath.PolicyResult, now time.Time) error {
	if err := e.store.MutateStrategy(key, func(st *store.Strategy) error {
		st.LastOkExit = now.Unix()
		return nil
	}); err != nil {
		return fmt.Errorf("persisting no-op exit: %w", err)
	}
	return e.journal.AppendRateAdjustment(key, "", "", result.DebtInFront.Dec(), result.TargetAmt.Dec(), "")
}

// commitRateChange implements steps 4-8: hint lookup, transaction
// assembly, sign/submit/wait with nonce and fee-bump retries, and the
// final atomic persist.
func (e *Engine) commitRateChange(ctx context.Context, st *store.Strategy, branch *ratemath.BranchState, result *ratemath.PolicyResult, now time.Time) error {
	upperHint, lowerHint, err := e.computeHint(ctx, st, result.NewRate)
	if err != nil {
		return err
	}

	maxFee, err := maxUpfrontFee(result.NewRate, branch.BatchDebt, st.UpfrontFeePeriodSec)
	if err != nil {
		return err
	}

	transactor, err := contracts.NewBatchManagerTransactor()
	if err != nil {
		return fmt.Errorf("binding batch manager transactor: %w", err)
	}
	calldata, err := transactor.PackSetNewRate(result.NewRate.ToBig(), upperHint, lowerHint, maxFee.ToBig())
	if err != nil {
		return fmt.Errorf("packing setNewRate calldata: %w", err)
	}

	txHash, newNonce, pending, err := e.signSubmitAndWait(ctx, st, calldata)
	if err != nil {
		return err
	}

	if pending {
		// The transaction is in flight but unreceipted: §8 forbids
		// committing latest_rate/eoa_nonce as if it had landed, since a
		// dropped or later-reverted tx would desync them from chain.
		// last_ok_exit still advances — the cycle itself did not fail,
		// it is simply not yet resolved.
		if err := e.store.MutateStrategy(st.Key, func(fresh *store.Strategy) error {
			fresh.LastOkExit = now.Unix()
			return nil
		}); err != nil {
			return fmt.Errorf("persisting pending-exit: %w", err)
		}
		return nil
	}

	if err := e.store.MutateStrategy(st.Key, func(fresh *store.Strategy) error {
		fresh.LatestRate = result.NewRate.Dec()
		fresh.LastUpdate = now.Unix()
		fresh.LastOkExit = now.Unix()
		fresh.EOANonce = newNonce
		return nil
	}); err != nil {
		return fmt.Errorf("persisting committed rate change: %w", err)
	}

	return e.journal.AppendRateAdjustment(st.Key, branch.BatchCurrentRate.Dec(), result.NewRate.Dec(), result.DebtInFront.Dec(), result.TargetAmt.Dec(), txHash)
}

func (e *Engine) computeHint(ctx context.Context, st *store.Strategy, newRate *uint256.Int) (upperHint, lowerHint *big.Int, err error) {
	opts := &bind.CallOpts{Context: ctx}
	collIdx := big.NewInt(int64(st.CollateralIndex))

	hh, err := contracts.NewHintHelpersCaller(common.HexToAddress(st.HintHelperAddress), e.caller)
	if err != nil {
		return nil, nil, fmt.Errorf("binding hint helpers: %w", err)
	}
	hintID, _, _, err := hh.GetApproxHint(opts, collIdx, newRate.ToBig(), big.NewInt(hintNumTrials), big.NewInt(clockNow().Unix()))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: getApproxHint: %v", rpcpool.ErrNoConsensus, err)
	}

	sortedTroves, err := contracts.NewSortedTrovesCaller(common.HexToAddress(st.SortedTrovesAddress), e.caller)
	if err != nil {
		return nil, nil, fmt.Errorf("binding sorted troves: %w", err)
	}
	upperHint, lowerHint, err = sortedTroves.FindInsertPosition(opts, newRate.ToBig(), hintID, hintID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: findInsertPosition: %v", rpcpool.ErrNoConsensus, err)
	}
	return upperHint, lowerHint, nil
}

// clockNow is indirected through a var so tests can freeze it;
// production always uses time.Now. Only the hint helper's PRNG seed
// depends on wall-clock time, not any policy decision.
var clockNow = time.Now

// maxUpfrontFee computes r_new * debt * (T / 31_536_000) * 1.05 per
// §4.3.2 step 5's 5% tolerance.
func maxUpfrontFee(newRate, debt *uint256.Int, periodSec int64) (*uint256.Int, error) {
	annualFrac, err := ratemath.Div(uint256.NewInt(uint64(periodSec)), uint256.NewInt(secondsPerYear))
	if err != nil {
		return nil, err
	}
	perDebtRate, err := ratemath.Mul(newRate, annualFrac)
	if err != nil {
		return nil, err
	}
	feeBase, err := ratemath.Mul(perDebtRate, debt)
	if err != nil {
		return nil, err
	}
	return ratemath.MulBps(feeBase, 10_500)
}

// signSubmitAndWait implements steps 6-7: nonce resolution, signing
// through the Signer Gateway, broadcast through the RPC pool, and
// receipt polling, with the retry policy of §4.3.2 step 6 and §7's
// "pending-nonce / underpriced" taxonomy. pending reports the case from
// step 7 where the receipt wait budget elapsed without a receipt: the
// transaction was broadcast but is not yet confirmed, so the caller
// must not treat it as a landed rate change (§8's eoa_nonce/latest_rate
// invariants only allow the +1/committed case once a receipt is seen).
func (e *Engine) signSubmitAndWait(ctx context.Context, st *store.Strategy, calldata []byte) (txHash string, newNonce uint64, pending bool, err error) {
	caps, err := signer.ComputeFeeCaps(ctx, e.feeSrc)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: computing fee caps: %v", rpcpool.ErrNoConsensus, err)
	}

	nonce, err := e.resolveNonce(ctx, st)
	if err != nil {
		return "", 0, false, err
	}

	to := common.HexToAddress(st.BatchManagerAddress)
	path := derivationPath(st.Key)

	backoff := e.nonceRetryBase
	var lastErr error
	for attempt := 0; attempt <= e.nonceRetryMax; attempt++ {
		signed, err := signer.BuildAndSign(ctx, e.gateway, path, e.chainID, nonce, caps.Tip, caps.FeeCap, e.gasLimit, to, big.NewInt(0), calldata)
		if err != nil {
			return "", 0, false, fmt.Errorf("signing transaction: %w", err)
		}

		rawHex, err := rlpEncodeHex(signed)
		if err != nil {
			return "", 0, false, fmt.Errorf("encoding signed transaction: %w", err)
		}

		broadcastErr := e.pool.Broadcast(ctx, rawHex)
		if broadcastErr == nil {
			hash := signed.Hash().Hex()
			receipt, err := e.waitForReceipt(ctx, signed.Hash())
			if err != nil {
				return "", 0, false, fmt.Errorf("%w: waiting for receipt: %v", rpcpool.ErrNoConsensus, err)
			}
			if receipt == nil {
				// Timeout: leave the transaction in flight; the next
				// hourly tick observes the resulting on-chain state.
				// Neither latest_rate nor eoa_nonce may be committed
				// from this attempt.
				_ = e.journal.AppendInfo(&st.Key, fmt.Sprintf("transaction %s still pending after receipt wait budget", hash))
				return hash, nonce, true, nil
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return "", 0, false, &CustomError{Detail: fmt.Sprintf("transaction %s reverted", hash)}
			}
			return hash, nonce + 1, false, nil
		}

		lastErr = broadcastErr
		msg := strings.ToLower(broadcastErr.Error())
		if !strings.Contains(msg, "nonce too low") && !strings.Contains(msg, "replacement transaction underpriced") {
			return "", 0, false, fmt.Errorf("%w: broadcasting transaction: %v", rpcpool.ErrNoConsensus, broadcastErr)
		}

		if attempt == e.nonceRetryMax {
			break
		}

		if strings.Contains(msg, "nonce too low") {
			refreshed, err := e.fetchOnChainNonce(ctx, st.EOAAddress)
			if err == nil && refreshed > nonce {
				nonce = refreshed
			}
		} else {
			caps = signer.BumpForReplacement(caps)
		}

		select {
		case <-ctx.Done():
			return "", 0, false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.nonceRetryCap {
			backoff = e.nonceRetryCap
		}
	}

	return "", 0, false, fmt.Errorf("%w: exhausted %d retries: %v", rpcpool.ErrNoConsensus, e.nonceRetryMax, lastErr)
}

// resolveNonce implements step 6's nonce formula:
// max(cached_eoa_nonce, eth_getTransactionCount(EOA,'pending')).
func (e *Engine) resolveNonce(ctx context.Context, st *store.Strategy) (uint64, error) {
	onChain, err := e.fetchOnChainNonce(ctx, st.EOAAddress)
	if err != nil {
		return 0, err
	}
	if st.EOANonce > onChain {
		return st.EOANonce, nil
	}
	return onChain, nil
}

func (e *Engine) fetchOnChainNonce(ctx context.Context, eoaAddress string) (uint64, error) {
	raw, err := e.pool.Call(ctx, e.minConsensus, "eth_getTransactionCount", eoaAddress, "pending")
	if err != nil {
		return 0, fmt.Errorf("%w: eth_getTransactionCount: %v", rpcpool.ErrNoConsensus, err)
	}
	var hexStr string
	if err := jsonUnmarshalString(raw, &hexStr); err != nil {
		return 0, fmt.Errorf("decoding eth_getTransactionCount: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(hexStr, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing nonce %q: %w", hexStr, err)
	}
	return v, nil
}

// waitForReceipt implements step 7: poll every receiptPoll interval up
// to receiptBudget. A nil, nil return means the budget elapsed without
// a receipt (treated as "leave in flight", not an error).
func (e *Engine) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(e.receiptBudget)
	for {
		raw, err := e.pool.Call(ctx, e.minConsensus, "eth_getTransactionReceipt", txHash)
		if err == nil {
			var receipt *types.Receipt
			if uErr := jsonUnmarshalReceipt(raw, &receipt); uErr == nil && receipt != nil {
				return receipt, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.receiptPoll):
		}
	}
}
