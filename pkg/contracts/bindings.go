// Package contracts holds hand-maintained abigen-shaped bindings for the
// Liquity V2 read-only helpers, the per-strategy BatchManager, and the
// ERC-20 and ckETH minter contracts, scaled down to only the methods the
// strategy and recharge engines call. Structurally these mirror
// go-ethereum's generated output (a MetaData ABI literal plus Caller and
// Transactor types; no Filterer types are provided), the same pattern the retrieval
// pack's account_v2.go binding follows, written by hand here since no
// abigen invocation is run as part of this build.
package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	_ = strings.NewReader
	_ = big.NewInt
)

// MultiTroveGetterMetaData exposes getMultipleSortedTroves for one branch.
var MultiTroveGetterMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"uint256","name":"_collIndex","type":"uint256"},{"internalType":"uint256","name":"_startIdx","type":"uint256"},{"internalType":"uint256","name":"_count","type":"uint256"}],"name":"getMultipleSortedTroves","outputs":[{"components":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"uint256","name":"debt","type":"uint256"},{"internalType":"uint256","name":"coll","type":"uint256"},{"internalType":"uint256","name":"annualInterestRate","type":"uint256"},{"internalType":"address","name":"batchManager","type":"address"},{"internalType":"uint256","name":"entireDebt","type":"uint256"}],"internalType":"struct MultiTroveGetter.CombinedTroveData[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"}]`,
}

// CombinedTroveData mirrors the Solidity struct returned by
// getMultipleSortedTroves, ordered ascending by annualInterestRate.
type CombinedTroveData struct {
	Id                 *big.Int
	Debt               *big.Int
	Coll               *big.Int
	AnnualInterestRate *big.Int
	BatchManager       common.Address
	EntireDebt         *big.Int
}

// MultiTroveGetterCaller is the read-only binding used by the strategy
// engine to fetch the branch's sorted troves.
type MultiTroveGetterCaller struct {
	contract *bind.BoundContract
}

func NewMultiTroveGetterCaller(address common.Address, caller bind.ContractCaller) (*MultiTroveGetterCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(MultiTroveGetterMetaData.ABI))
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, caller, nil, nil)
	return &MultiTroveGetterCaller{contract: contract}, nil
}

func (c *MultiTroveGetterCaller) GetMultipleSortedTroves(opts *bind.CallOpts, collIndex, startIdx, count *big.Int) ([]CombinedTroveData, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getMultipleSortedTroves", collIndex, startIdx, count)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]CombinedTroveData)).(*[]CombinedTroveData), nil
}

// HintHelpersMetaData exposes getApproxHint.
var HintHelpersMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"uint256","name":"_collIndex","type":"uint256"},{"internalType":"uint256","name":"_interestRate","type":"uint256"},{"internalType":"uint256","name":"_numTrials","type":"uint256"},{"internalType":"uint256","name":"_inputRandomSeed","type":"uint256"}],"name":"getApproxHint","outputs":[{"internalType":"uint256","name":"hintId","type":"uint256"},{"internalType":"uint256","name":"diff","type":"uint256"},{"internalType":"uint256","name":"latestRandomSeed","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
}

type HintHelpersCaller struct {
	contract *bind.BoundContract
}

func NewHintHelpersCaller(address common.Address, caller bind.ContractCaller) (*HintHelpersCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(HintHelpersMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &HintHelpersCaller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

func (c *HintHelpersCaller) GetApproxHint(opts *bind.CallOpts, collIndex, interestRate, numTrials, seed *big.Int) (hintID, diff, latestSeed *big.Int, err error) {
	var out []interface{}
	err = c.contract.Call(opts, &out, "getApproxHint", collIndex, interestRate, numTrials, seed)
	if err != nil {
		return nil, nil, nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		*abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		*abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		nil
}

// SortedTrovesMetaData exposes findInsertPosition.
var SortedTrovesMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"uint256","name":"_interestRate","type":"uint256"},{"internalType":"uint256","name":"_prevId","type":"uint256"},{"internalType":"uint256","name":"_nextId","type":"uint256"}],"name":"findInsertPosition","outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
}

type SortedTrovesCaller struct {
	contract *bind.BoundContract
}

func NewSortedTrovesCaller(address common.Address, caller bind.ContractCaller) (*SortedTrovesCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(SortedTrovesMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &SortedTrovesCaller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

func (c *SortedTrovesCaller) FindInsertPosition(opts *bind.CallOpts, interestRate, prevID, nextID *big.Int) (upperHint, lowerHint *big.Int, err error) {
	var out []interface{}
	err = c.contract.Call(opts, &out, "findInsertPosition", interestRate, prevID, nextID)
	if err != nil {
		return nil, nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		*abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		nil
}

// TroveManagerMetaData exposes getLatestBatchData.
var TroveManagerMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"address","name":"_batchAddress","type":"address"}],"name":"getLatestBatchData","outputs":[{"components":[{"internalType":"uint256","name":"entireDebtWithoutRedistribution","type":"uint256"},{"internalType":"uint256","name":"accruedInterest","type":"uint256"},{"internalType":"uint256","name":"weightedRecordedDebt","type":"uint256"},{"internalType":"uint256","name":"annualInterestRate","type":"uint256"},{"internalType":"uint256","name":"annualManagementFee","type":"uint256"},{"internalType":"uint256","name":"lastDebtUpdateTime","type":"uint256"}],"internalType":"struct LatestBatchData","name":"","type":"tuple"}],"stateMutability":"view","type":"function"}]`,
}

type LatestBatchData struct {
	EntireDebtWithoutRedistribution *big.Int
	AccruedInterest                 *big.Int
	WeightedRecordedDebt            *big.Int
	AnnualInterestRate              *big.Int
	AnnualManagementFee             *big.Int
	LastDebtUpdateTime              *big.Int
}

type TroveManagerCaller struct {
	contract *bind.BoundContract
}

func NewTroveManagerCaller(address common.Address, caller bind.ContractCaller) (*TroveManagerCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(TroveManagerMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &TroveManagerCaller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

func (c *TroveManagerCaller) GetLatestBatchData(opts *bind.CallOpts, batchAddress common.Address) (LatestBatchData, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getLatestBatchData", batchAddress)
	if err != nil {
		return LatestBatchData{}, err
	}
	return *abi.ConvertType(out[0], new(LatestBatchData)).(*LatestBatchData), nil
}

// CollateralRegistryMetaData exposes getRedemptionRateWithDecay and the
// fleet-wide/per-branch totals MaxRedeemable needs (SPEC_FULL.md
// §4.3.2 step 3: totalBoldDebt, totalUnbacked, unbackedPortion).
var CollateralRegistryMetaData = &bind.MetaData{
	ABI: `[{"inputs":[],"name":"getRedemptionRateWithDecay","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"totalCollaterals","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"totalBoldDebt","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"totalUnbacked","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"uint256","name":"_collIndex","type":"uint256"}],"name":"unbackedPortion","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
}

type CollateralRegistryCaller struct {
	contract *bind.BoundContract
}

func NewCollateralRegistryCaller(address common.Address, caller bind.ContractCaller) (*CollateralRegistryCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(CollateralRegistryMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &CollateralRegistryCaller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

func (c *CollateralRegistryCaller) GetRedemptionRateWithDecay(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getRedemptionRateWithDecay")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *CollateralRegistryCaller) TotalBoldDebt(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "totalBoldDebt")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *CollateralRegistryCaller) TotalUnbacked(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "totalUnbacked")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *CollateralRegistryCaller) UnbackedPortion(opts *bind.CallOpts, collIndex *big.Int) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "unbackedPortion", collIndex)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// BatchManagerMetaData exposes the single mutating call the agent makes
// on-chain, setNewRate, plus the read-only ManagerEOA check.
var BatchManagerMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"uint128","name":"_newAnnualInterestRate","type":"uint128"},{"internalType":"uint256","name":"_upperHint","type":"uint256"},{"internalType":"uint256","name":"_lowerHint","type":"uint256"},{"internalType":"uint256","name":"_maxUpfrontFee","type":"uint256"}],"name":"setNewRate","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[],"name":"ManagerEOA","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`,
}

// BatchManagerTransactor packs calldata for setNewRate; actual signing
// and broadcast happen through the signer gateway (pkg/signer), not
// through bind.TransactOpts, since signatures are produced by a
// threshold-ECDSA equivalent rather than a locally held key in
// production deployments.
type BatchManagerTransactor struct {
	abi abi.ABI
}

func NewBatchManagerTransactor() (*BatchManagerTransactor, error) {
	parsed, err := abi.JSON(strings.NewReader(BatchManagerMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &BatchManagerTransactor{abi: parsed}, nil
}

// PackSetNewRate encodes the calldata for setNewRate(newRate, upperHint, lowerHint, maxUpfrontFee).
func (t *BatchManagerTransactor) PackSetNewRate(newRate, upperHint, lowerHint, maxUpfrontFee *big.Int) ([]byte, error) {
	return t.abi.Pack("setNewRate", newRate, upperHint, lowerHint, maxUpfrontFee)
}

type BatchManagerCaller struct {
	contract *bind.BoundContract
}

func NewBatchManagerCaller(address common.Address, caller bind.ContractCaller) (*BatchManagerCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(BatchManagerMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &BatchManagerCaller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

func (c *BatchManagerCaller) ManagerEOA(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "ManagerEOA")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// ERC20MetaData exposes the balanceOf/transfer subset of the ERC-20
// standard the Recharge Engine (C6) needs to treat ckETH as an
// on-chain token: balanceOf for the "canister ckETH ledger balance"
// check, transfer for moving the discounted amount to a swap_cketh
// recipient.
var ERC20MetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`,
}

type ERC20Caller struct {
	contract *bind.BoundContract
	abi      abi.ABI
}

func NewERC20Caller(address common.Address, caller bind.ContractCaller) (*ERC20Caller, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20MetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &ERC20Caller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil), abi: parsed}, nil
}

func (c *ERC20Caller) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PackTransfer encodes calldata for transfer(to, amount); submission
// goes through the signer gateway like BatchManagerTransactor's
// setNewRate, not through bind.TransactOpts.
func (c *ERC20Caller) PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return c.abi.Pack("transfer", to, amount)
}

// CkETHMinterMetaData mirrors the real ckETH minter helper's deposit
// entrypoint: a payable call carrying the destination principal packed
// into a bytes32, which the host mints 1:1 against on the other side.
var CkETHMinterMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"bytes32","name":"_principal","type":"bytes32"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}]`,
}

type CkETHMinterTransactor struct {
	abi abi.ABI
}

func NewCkETHMinterTransactor() (*CkETHMinterTransactor, error) {
	parsed, err := abi.JSON(strings.NewReader(CkETHMinterMetaData.ABI))
	if err != nil {
		return nil, err
	}
	return &CkETHMinterTransactor{abi: parsed}, nil
}

// PackDeposit encodes calldata for deposit(principal); value (the ETH
// amount being deposited) is set on the transaction itself, not here.
func (t *CkETHMinterTransactor) PackDeposit(principal [32]byte) ([]byte, error) {
	return t.abi.Pack("deposit", principal)
}
