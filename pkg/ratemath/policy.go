package ratemath

import (
	"github.com/holiman/uint256"
)

// Decision is the outcome of evaluating the rate policy for one tick.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionIncrease
	DecisionDecrease
)

func (d Decision) String() string {
	switch d {
	case DecisionIncrease:
		return "increase"
	case DecisionDecrease:
		return "decrease"
	default:
		return "none"
	}
}

// Trove is the subset of MultiTroveGetter's per-trove fields the policy
// needs, ordered by interest rate ascending as returned on-chain.
type Trove struct {
	ID          uint64
	InterestRate *uint256.Int
	EntireDebt   *uint256.Int
}

// BranchState is everything step 2 of the execution protocol fetches for
// one tick, already decoded from RPC responses.
type BranchState struct {
	SortedTroves      []Trove // ascending by InterestRate, then by ID (tie-break, §9 open question a)
	RedemptionFee     *uint256.Int // f, e18
	TotalBoldDebt     *uint256.Int
	TotalUnbacked     *uint256.Int
	UnbackedPortion   *uint256.Int // this branch's share of TotalUnbacked

	BatchCurrentRate *uint256.Int // r_curr
	BatchAvgRate     *uint256.Int // r_avg
	BatchDebt        *uint256.Int
	BatchHeadTroveID uint64
	LastUpdate       int64 // unix seconds
}

// PolicyParams are the per-strategy immutable settings the policy needs.
type PolicyParams struct {
	TargetMinDebtFraction *uint256.Int // D_min, e18
	UpfrontFeePeriodSec   int64        // T
	IncreaseMarginBps     int64        // M_d, as used in the increase condition threshold (1 - M_d)
	DecreaseMarginBps     int64        // M_u, as used in the decrease condition threshold (1 + M_u)
}

// PolicyResult is the full computed intermediate state of one evaluation,
// carried into the journal's RateAdjustment entry regardless of outcome.
type PolicyResult struct {
	Decision      Decision
	MaxRedeemable *uint256.Int
	TargetPct     *uint256.Int
	TargetAmt     *uint256.Int
	DebtInFront   *uint256.Int
	NewRate       *uint256.Int // only meaningful if Decision != DecisionNone
}

const pointZeroZeroFiveE18 = 5_000_000_000_000_000 // 0.005e18, the redemption-fee normalization constant

// Evaluate runs the full step-3 computation: MaxRedeemable, TargetPct,
// TargetAmt, the debt-in-front walk, and the increase/decrease decision.
// now is the current unix timestamp (injected for determinism in tests).
func Evaluate(branch BranchState, params PolicyParams, now int64) (*PolicyResult, error) {
	maxRedeemable, err := maxRedeemableOf(branch)
	if err != nil {
		return nil, err
	}

	targetPct, err := targetPctOf(params.TargetMinDebtFraction, branch.RedemptionFee)
	if err != nil {
		return nil, err
	}

	targetAmt, err := Mul(targetPct, maxRedeemable)
	if err != nil {
		return nil, err
	}

	debtInFront := debtInFrontOf(branch)

	res := &PolicyResult{
		MaxRedeemable: maxRedeemable,
		TargetPct:     targetPct,
		TargetAmt:     targetAmt,
		DebtInFront:   debtInFront,
	}

	lowerBound, err := MulBps(targetAmt, 10000-params.IncreaseMarginBps)
	if err != nil {
		return nil, err
	}
	upperBound, err := MulBps(targetAmt, 10000+params.DecreaseMarginBps)
	if err != nil {
		return nil, err
	}

	switch {
	case debtInFront.Lt(lowerBound):
		res.Decision = DecisionIncrease
		rate, err := findInsertionRate(branch, targetAmt)
		if err != nil {
			return nil, err
		}
		res.NewRate = rate

	case debtInFront.Gt(upperBound):
		rate, err := findInsertionRate(branch, targetAmt)
		if err != nil {
			return nil, err
		}
		if decreaseTimingAllows(branch, params, now, rate) {
			res.Decision = DecisionDecrease
			res.NewRate = rate
		} else {
			res.Decision = DecisionNone
		}

	default:
		res.Decision = DecisionNone
	}

	return res, nil
}

// maxRedeemableOf computes (unbackedPortion / totalUnbacked) * totalDebt.
func maxRedeemableOf(b BranchState) (*uint256.Int, error) {
	if b.TotalUnbacked.IsZero() {
		return nil, arithErr("totalUnbacked is zero, cannot compute redeemable share")
	}
	share, err := Div(b.UnbackedPortion, b.TotalUnbacked)
	if err != nil {
		return nil, err
	}
	return Mul(share, b.TotalBoldDebt)
}

// targetPctOf computes 2 * D_min * (f/0.005) / (1 + f/0.005).
func targetPctOf(dMin, f *uint256.Int) (*uint256.Int, error) {
	norm, err := Div(f, uint256.NewInt(pointZeroZeroFiveE18))
	if err != nil {
		return nil, err
	}
	onePlusNorm, err := Add(One, norm)
	if err != nil {
		return nil, err
	}
	if onePlusNorm.IsZero() {
		return nil, arithErr("1 + f/0.005 is zero")
	}
	twoDMin, err := Add(dMin, dMin)
	if err != nil {
		return nil, err
	}
	numerator, err := Mul(twoDMin, norm)
	if err != nil {
		return nil, err
	}
	return Div(numerator, onePlusNorm)
}

// debtInFrontOf sums entireDebt over troves with InterestRate <= the
// batch's current rate that sit before the batch's head trove in the
// sorted-by-rate list. Ties at the same rate are broken by trove ID,
// ascending (lower ID first) — SPEC_FULL.md §9 open question (a).
func debtInFrontOf(b BranchState) *uint256.Int {
	sum := new(uint256.Int)
	for _, t := range b.SortedTroves {
		if t.ID == b.BatchHeadTroveID {
			break
		}
		if t.InterestRate.Gt(b.BatchCurrentRate) {
			break
		}
		if t.InterestRate.Eq(b.BatchCurrentRate) && t.ID > b.BatchHeadTroveID {
			break
		}
		sum = new(uint256.Int).Add(sum, t.EntireDebt)
	}
	return sum
}

// decreaseTimingAllows evaluates the decrease condition's second clause:
// t >= T, or (1 - t/T) * (r_curr - r_new) > r_avg. rNew is the candidate
// rate Evaluate already derived from the real targetAmt via
// findInsertionRate, so the timing check and the committed rate always
// agree.
func decreaseTimingAllows(b BranchState, p PolicyParams, now int64, rNew *uint256.Int) bool {
	t := now - b.LastUpdate
	if t < 0 {
		t = 0
	}
	if t >= p.UpfrontFeePeriodSec {
		return true
	}

	if rNew.Gt(b.BatchCurrentRate) {
		return false // a decrease candidate must lower the rate
	}
	rDiff, err := Sub(b.BatchCurrentRate, rNew)
	if err != nil {
		return false
	}

	remaining := p.UpfrontFeePeriodSec - t
	frac, err := Div(uint256.NewInt(uint64(remaining)), uint256.NewInt(uint64(p.UpfrontFeePeriodSec)))
	if err != nil {
		return false
	}
	weighted, err := Mul(frac, rDiff)
	if err != nil {
		return false
	}
	return weighted.Gt(b.BatchAvgRate)
}

// findInsertionRate walks the sorted-troves list to find the rate slot
// where cumulative debt-in-front equals targetAmt, then adds one basis
// point per SPEC_FULL.md §4.3.2 step 3's "interpolating the next rate
// slot + 1 basis point".
func findInsertionRate(b BranchState, targetAmt *uint256.Int) (*uint256.Int, error) {
	const oneBasisPoint = 100_000_000_000_000 // 0.0001e18

	cumulative := new(uint256.Int)
	for _, t := range b.SortedTroves {
		if cumulative.Gt(targetAmt) || cumulative.Eq(targetAmt) {
			rate, err := Add(t.InterestRate, uint256.NewInt(oneBasisPoint))
			if err != nil {
				return nil, err
			}
			return rate, nil
		}
		next, err := Add(cumulative, t.EntireDebt)
		if err != nil {
			return nil, err
		}
		cumulative = next
	}
	// target exceeds all cumulative debt in the branch: insert above the
	// highest-rate trove.
	if len(b.SortedTroves) == 0 {
		return nil, arithErr("cannot find insertion rate: sorted troves list is empty")
	}
	last := b.SortedTroves[len(b.SortedTroves)-1]
	return Add(last.InterestRate, uint256.NewInt(oneBasisPoint))
}
