// Package recharge implements the Recharge Engine (C6): the ckETH
// minting loop and the swap_cketh arbitrage operation described in
// SPEC_FULL.md §4.4, grounded on pkg/strategy/engine.go's shape (a
// logger-carrying struct wired to the same Store/Journal/Pool/Gateway
// quartet) and on the retrieval pack's treatment of a second,
// independent lock flag alongside the per-strategy ones.
package recharge

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/contracts"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/ratemath"
	"github.com/liquity/ir-agent/pkg/rpcpool"
	"github.com/liquity/ir-agent/pkg/signer"
	"github.com/liquity/ir-agent/pkg/store"
)

// RateOracle reports the current ETH/XDR exchange rate (XDR per 1 ETH,
// e18 fixed point) used to price swap_cketh. A real deployment would
// source this the way an IC canister does — from the CMC's on-chain
// exchange rate canister — which has no EVM equivalent; StaticRateOracle
// stands in until a production price feed is wired.
type RateOracle interface {
	EthXDRRate(ctx context.Context) (*uint256.Int, error)
}

// StaticRateOracle returns a fixed, configured rate. It is named for
// what it is rather than hidden behind a generic default, so anyone
// wiring a real price feed later knows exactly what they are replacing.
type StaticRateOracle struct {
	RateE18 *uint256.Int
}

func (o StaticRateOracle) EthXDRRate(context.Context) (*uint256.Int, error) {
	return o.RateE18, nil
}

// HaltChecker reports whether the Halting Supervisor (C7) has moved the
// fleet into the Halted phase, in which case minting and swap_cketh are
// both refused (§4.5), mirroring strategy.HaltChecker.
type HaltChecker interface {
	IsHalted() bool
}

// alwaysFunctional is the default HaltChecker when none is wired.
type alwaysFunctional struct{}

func (alwaysFunctional) IsHalted() bool { return false }

// SwapResult is the response shape of §4.4's swap_cketh.
type SwapResult struct {
	RealRate        string
	DiscountedRate  string
	AcceptedCycles  uint64
	ReturningCycles uint64
	ReturningEther  string
	TxHash          string
}

// Engine holds no state of its own beyond its dependencies; the mint
// cursor, swap lock, and treasury identity all live in store.Store so a
// restart resumes rather than replays (mirrors strategy.Engine).
type Engine struct {
	store   *store.Store
	journal *journal.Journal
	pool    *rpcpool.Pool
	caller  bind.ContractCaller
	gateway signer.Gateway
	feeSrc  signer.FeeHistorySource
	oracle  RateOracle
	halt    HaltChecker

	chainID          *big.Int
	ckETHTokenAddr   common.Address
	ckETHHelperAddr  common.Address

	minCkETH          *uint256.Int
	mintAmountWei     *uint256.Int
	cyclesThreshold   uint64
	minSwapCycles     uint64
	swapDiscountBps   int64
	cyclesPerXDR      uint64

	minConsensus int
	gasLimit     uint64

	logger *log.Logger
}

type Config struct {
	Store   *store.Store
	Journal *journal.Journal
	Pool    *rpcpool.Pool
	Gateway signer.Gateway
	Oracle  RateOracle
	Halt    HaltChecker
	ChainID *big.Int

	CkETHTokenAddress  string
	CkETHHelperAddress string

	Constants config.SystemConstants

	GasLimit uint64
	Logger   *log.Logger
}

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[RechargeEngine] ", log.LstdFlags)
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 100_000
	}
	minConsensus := cfg.Constants.RPCConsensusDefault
	if minConsensus == 0 {
		minConsensus = 3
	}

	minCkETH, err := parseUintDecimal(cfg.Constants.MinCkETH)
	if err != nil {
		return nil, fmt.Errorf("parsing min_cketh: %w", err)
	}
	mintAmount, err := parseUintDecimal(cfg.Constants.MintAmountWei)
	if err != nil {
		return nil, fmt.Errorf("parsing mint_amount_wei: %w", err)
	}
	cyclesThreshold, err := strconv.ParseUint(orDefault(cfg.Constants.CyclesThreshold, "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing cycles_recharge_threshold: %w", err)
	}
	minSwapCycles, err := strconv.ParseUint(orDefault(cfg.Constants.MinSwapCycles, "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing min_swap_cycles: %w", err)
	}

	oracle := cfg.Oracle
	if oracle == nil {
		rate, err := parseUintDecimal(cfg.Constants.EthXdrRate)
		if err != nil {
			return nil, fmt.Errorf("parsing eth_xdr_rate: %w", err)
		}
		oracle = StaticRateOracle{RateE18: rate}
	}
	halt := cfg.Halt
	if halt == nil {
		halt = alwaysFunctional{}
	}

	caller := &rpcpool.ContractCaller{Pool: cfg.Pool, MinConsensus: minConsensus}
	feeSrc := &signer.PoolFeeHistorySource{Pool: cfg.Pool, MinConsensus: minConsensus}

	return &Engine{
		store:           cfg.Store,
		journal:         cfg.Journal,
		pool:            cfg.Pool,
		caller:          caller,
		gateway:         cfg.Gateway,
		feeSrc:          feeSrc,
		oracle:          oracle,
		halt:            halt,
		chainID:         cfg.ChainID,
		ckETHTokenAddr:  common.HexToAddress(cfg.CkETHTokenAddress),
		ckETHHelperAddr: common.HexToAddress(cfg.CkETHHelperAddress),
		minCkETH:        minCkETH,
		mintAmountWei:   mintAmount,
		cyclesThreshold: cyclesThreshold,
		minSwapCycles:   minSwapCycles,
		swapDiscountBps: int64(cfg.Constants.SwapDiscountBps),
		cyclesPerXDR:    cfg.Constants.CyclesPerXDR,
		minConsensus:    minConsensus,
		gasLimit:        gasLimit,
		logger:          logger,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseUintDecimal(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}

var bigE18 = new(big.Int).SetUint64(1_000_000_000_000_000_000)

// EnsureTreasury derives the agent's own EOA once, the way assign_keys
// derives one per strategy, so the minting loop and swap_cketh have an
// address to hold ckETH and receive mint credit under.
func (e *Engine) EnsureTreasury(ctx context.Context) (string, error) {
	g, err := e.store.GetGlobal()
	if err != nil {
		return "", err
	}
	if g.TreasuryAddress != "" {
		return g.TreasuryAddress, nil
	}

	pub, addr, err := e.gateway.DerivePublicKey(ctx, treasuryDerivationPath)
	if err != nil {
		return "", fmt.Errorf("deriving treasury key: %w", err)
	}

	var resolved string
	if err := e.store.MutateGlobal(func(gs *store.GlobalState) error {
		if gs.TreasuryAddress == "" {
			gs.TreasuryAddress = addr.Hex()
			gs.TreasuryPublicKeyHex = hexEncode(pub)
		}
		resolved = gs.TreasuryAddress
		return nil
	}); err != nil {
		return "", fmt.Errorf("persisting treasury identity: %w", err)
	}
	return resolved, nil
}

const treasuryDerivationPath = "treasury"

func hexEncode(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}

// MintOnce runs one pass of the 24h ckETH minting loop of §4.4: if the
// treasury's ckETH balance is already at or above MIN_CKETH this is a
// no-op; otherwise it walks the strategy list starting at the stored
// round-robin cursor, looking for the first EOA with enough ETH to cover
// MINT_AMOUNT, and submits a deposit to the ckETH helper contract from
// it. It gives up for this cycle once every strategy has been tried.
func (e *Engine) MintOnce(ctx context.Context) error {
	if e.halt.IsHalted() {
		return ErrHalted
	}

	treasury, err := e.EnsureTreasury(ctx)
	if err != nil {
		return err
	}

	balance, err := e.ckETHBalance(ctx, common.HexToAddress(treasury))
	if err != nil {
		return fmt.Errorf("reading treasury ckETH balance: %w", err)
	}
	if balance.Cmp(e.minCkETH) >= 0 {
		return nil
	}

	global, err := e.store.GetGlobal()
	if err != nil {
		return err
	}

	strategies, err := e.store.ListStrategies(e.highWaterMark())
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		e.logger.Printf("no strategies registered, nothing to mint from")
		return nil
	}

	start := int(global.MintCursor) % len(strategies)
	for i := 0; i < len(strategies); i++ {
		st := strategies[(start+i)%len(strategies)]
		if st.EOAAddress == "" {
			continue
		}

		ethBalance, err := e.ethBalance(ctx, common.HexToAddress(st.EOAAddress))
		if err != nil {
			e.logger.Printf("strategy %d: reading ETH balance: %v", st.Key, err)
			continue
		}
		if ethBalance.Cmp(e.mintAmountWei) < 0 {
			continue
		}

		txHash, err := e.submitMintDeposit(ctx, st.Key, treasury)
		cursorAdvance := uint32((start + i + 1) % len(strategies))
		if mutErr := e.store.MutateGlobal(func(gs *store.GlobalState) error {
			gs.MintCursor = cursorAdvance
			return nil
		}); mutErr != nil {
			e.logger.Printf("persisting mint cursor: %v", mutErr)
		}
		if err != nil {
			_ = e.journal.AppendRecharge(&st.Key, fmt.Sprintf("mint deposit failed: %v", err), false)
			return fmt.Errorf("strategy %d: submitting mint deposit: %w", st.Key, err)
		}
		return e.journal.AppendRecharge(&st.Key, fmt.Sprintf("minted via deposit %s", txHash), true)
	}

	return ErrNoFundedEOA
}

func (e *Engine) highWaterMark() uint32 {
	g, err := e.store.GetGlobal()
	if err != nil {
		return 0
	}
	return g.StrategyCount
}

func (e *Engine) ethBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	raw, err := e.pool.Call(ctx, e.minConsensus, "eth_getBalance", addr.Hex(), "latest")
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getBalance: %v", rpcpool.ErrNoConsensus, err)
	}
	var hexStr string
	if err := jsonUnmarshalString(raw, &hexStr); err != nil {
		return nil, fmt.Errorf("decoding eth_getBalance: %w", err)
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(hexStr, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("parsing balance %q", hexStr)
	}
	return v, nil
}

func (e *Engine) ckETHBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	erc20, err := contracts.NewERC20Caller(e.ckETHTokenAddr, e.caller)
	if err != nil {
		return nil, fmt.Errorf("binding ckETH token: %w", err)
	}
	return erc20.BalanceOf(&bind.CallOpts{Context: ctx}, addr)
}

// submitMintDeposit sends MINT_AMOUNT wei to the ckETH helper's
// deposit() from the chosen strategy's EOA, packing the treasury
// address (left-padded to 32 bytes) as the destination principal in
// place of a Candid principal, which has no EVM equivalent.
func (e *Engine) submitMintDeposit(ctx context.Context, strategyKey uint32, treasury string) (string, error) {
	st, err := e.store.GetStrategy(strategyKey)
	if err != nil {
		return "", err
	}

	transactor, err := contracts.NewCkETHMinterTransactor()
	if err != nil {
		return "", fmt.Errorf("binding ckETH minter: %w", err)
	}
	var principal [32]byte
	copy(principal[12:], common.HexToAddress(treasury).Bytes())
	calldata, err := transactor.PackDeposit(principal)
	if err != nil {
		return "", fmt.Errorf("packing deposit calldata: %w", err)
	}

	caps, err := signer.ComputeFeeCaps(ctx, e.feeSrc)
	if err != nil {
		return "", fmt.Errorf("%w: computing fee caps: %v", rpcpool.ErrNoConsensus, err)
	}

	nonce, err := e.onChainNonce(ctx, st.EOAAddress)
	if err != nil {
		return "", err
	}
	if st.EOANonce > nonce {
		nonce = st.EOANonce
	}

	path := fmt.Sprintf("strategy/%d", st.Key)
	signed, err := signer.BuildAndSign(ctx, e.gateway, path, e.chainID, nonce, caps.Tip, caps.FeeCap, e.gasLimit, e.ckETHHelperAddr, e.mintAmountWei.ToBig(), calldata)
	if err != nil {
		return "", fmt.Errorf("signing deposit: %w", err)
	}

	rawHex, err := hexEncodeSigned(signed)
	if err != nil {
		return "", err
	}
	if err := e.pool.Broadcast(ctx, rawHex); err != nil {
		return "", fmt.Errorf("%w: broadcasting deposit: %v", rpcpool.ErrNoConsensus, err)
	}

	hash := signed.Hash().Hex()
	if err := e.store.MutateStrategy(st.Key, func(fresh *store.Strategy) error {
		fresh.EOANonce = nonce + 1
		return nil
	}); err != nil {
		e.logger.Printf("strategy %d: persisting nonce after mint deposit: %v", st.Key, err)
	}
	return hash, nil
}

func (e *Engine) onChainNonce(ctx context.Context, eoaAddress string) (uint64, error) {
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

// SwapCkETH implements §4.4's swap_cketh(recipient): exchange the
// caller's attached cycles for ckETH at the current ETH/XDR rate, minus
// a configured discount retained as the agent's arbitrage margin.
// It is guarded by its own lock, distinct from any strategy's, since
// it contends with the minting loop for the treasury's ckETH balance
// rather than with hourly strategy execution.
func (e *Engine) SwapCkETH(ctx context.Context, recipient string, attachedCycles uint64) (*SwapResult, error) {
	if e.halt.IsHalted() {
		return nil, ErrHalted
	}

	global, err := e.store.GetGlobal()
	if err != nil {
		return nil, err
	}
	if global.CyclesBalance >= e.cyclesThreshold {
		return nil, ErrAboveCyclesThreshold
	}
	if attachedCycles < e.minSwapCycles {
		return nil, ErrInsufficientCycles
	}

	if err := e.store.MutateGlobal(func(gs *store.GlobalState) error {
		if gs.SwapLocked {
			return ErrSwapLocked
		}
		gs.SwapLocked = true
		return nil
	}); err != nil {
		return nil, err
	}
	defer e.releaseSwapLock()

	treasury, err := e.EnsureTreasury(ctx)
	if err != nil {
		return nil, err
	}

	xdrPerEth, err := e.oracle.EthXDRRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching eth/xdr rate: %w", err)
	}
	if xdrPerEth.IsZero() {
		return nil, &ratemath.ArithError{Detail: "eth/xdr rate is zero"}
	}

	// realRateWeiPerCycle = 1e18 (wei/ETH) * 1e18 (fixed-point scale) /
	// (xdrPerEth * cyclesPerXDR), i.e. wei owed per single cycle before
	// the arbitrage discount. Plain big.Int arithmetic, not ratemath's
	// fixed-point Mul/Div, since cyclesPerXDR and attachedCycles are
	// ordinary integer counts rather than e18-scaled quantities.
	weiScale := new(big.Int).Mul(bigE18, bigE18)
	denom := new(big.Int).Mul(xdrPerEth.ToBig(), new(big.Int).SetUint64(e.cyclesPerXDR))
	realRateWeiPerCycle := new(big.Int).Div(weiScale, denom)

	discounted := new(big.Int).Mul(realRateWeiPerCycle, big.NewInt(10_000-e.swapDiscountBps))
	discounted.Div(discounted, big.NewInt(10_000))

	etherOwedWei := new(big.Int).Mul(discounted, new(big.Int).SetUint64(attachedCycles))

	balance, err := e.ckETHBalance(ctx, common.HexToAddress(treasury))
	if err != nil {
		return nil, fmt.Errorf("reading treasury ckETH balance: %w", err)
	}
	payable := new(big.Int).Set(etherOwedWei)
	returningCycles := uint64(0)
	if payable.Cmp(balance) > 0 {
		// Not enough ckETH on hand to fully honor the swap; pay out what
		// the treasury has and hand back the unconsumed cycles.
		shortfallRatio := new(big.Int).Sub(payable, balance)
		shortfallCycles := new(big.Int).Div(new(big.Int).Mul(shortfallRatio, big.NewInt(int64(attachedCycles))), payable)
		if shortfallCycles.IsUint64() {
			returningCycles = shortfallCycles.Uint64()
		} else {
			returningCycles = attachedCycles
		}
		payable = new(big.Int).Set(balance)
	}
	acceptedCycles := attachedCycles - returningCycles

	erc20, err := contracts.NewERC20Caller(e.ckETHTokenAddr, e.caller)
	if err != nil {
		return nil, fmt.Errorf("binding ckETH token transfer: %w", err)
	}
	calldata, err := erc20.PackTransfer(common.HexToAddress(recipient), payable)
	if err != nil {
		return nil, fmt.Errorf("packing transfer calldata: %w", err)
	}

	caps, err := signer.ComputeFeeCaps(ctx, e.feeSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: computing fee caps: %v", rpcpool.ErrNoConsensus, err)
	}
	nonce, err := e.onChainNonce(ctx, treasury)
	if err != nil {
		return nil, err
	}
	signed, err := signer.BuildAndSign(ctx, e.gateway, treasuryDerivationPath, e.chainID, nonce, caps.Tip, caps.FeeCap, e.gasLimit, e.ckETHTokenAddr, big.NewInt(0), calldata)
	if err != nil {
		return nil, fmt.Errorf("signing ckETH transfer: %w", err)
	}
	rawHex, err := hexEncodeSigned(signed)
	if err != nil {
		return nil, err
	}
	if err := e.pool.Broadcast(ctx, rawHex); err != nil {
		return nil, fmt.Errorf("%w: broadcasting ckETH transfer: %v", rpcpool.ErrNoConsensus, err)
	}
	txHash := signed.Hash().Hex()

	if err := e.store.MutateGlobal(func(gs *store.GlobalState) error {
		gs.CyclesBalance += acceptedCycles
		return nil
	}); err != nil {
		e.logger.Printf("persisting cycles balance after swap: %v", err)
	}

	result := &SwapResult{
		RealRate:        realRateWeiPerCycle.String(),
		DiscountedRate:  discounted.String(),
		AcceptedCycles:  acceptedCycles,
		ReturningCycles: returningCycles,
		ReturningEther:  payable.String(),
		TxHash:          txHash,
	}
	_ = e.journal.AppendRecharge(nil, fmt.Sprintf("swap_cketh: %d cycles -> %s wei, tx %s", acceptedCycles, payable.String(), txHash), true)
	return result, nil
}

func (e *Engine) releaseSwapLock() {
	if err := e.store.MutateGlobal(func(gs *store.GlobalState) error {
		gs.SwapLocked = false
		return nil
	}); err != nil {
		e.logger.Printf("releasing swap lock: %v", err)
	}
}
