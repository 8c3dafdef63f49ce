package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/liquity/ir-agent/pkg/ethereum"
)

// FeeHistorySource is the subset of the RPC pool the gas-fee policy
// needs; kept as an interface so tests can stub it without a live node.
type FeeHistorySource interface {
	FeeHistorySample(ctx context.Context) (baseFee *big.Int, tipP50, tipP90 *big.Int, err error)
}

// ClientFeeHistorySource adapts a single ethereum.Client into a
// FeeHistorySource, querying the most recent 10 blocks' 50th/90th
// percentile priority-fee rewards per SPEC_FULL.md §4.2.
type ClientFeeHistorySource struct {
	Client *ethereum.Client
}

func (s *ClientFeeHistorySource) FeeHistorySample(ctx context.Context) (*big.Int, *big.Int, *big.Int, error) {
	hist, err := s.Client.FeeHistory(ctx, 10, []float64{50, 90})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("eth_feeHistory: %w", err)
	}
	if len(hist.BaseFee) == 0 || len(hist.Reward) == 0 {
		return nil, nil, nil, fmt.Errorf("eth_feeHistory: empty response")
	}

	baseFee := hist.BaseFee[len(hist.BaseFee)-1]

	var p50s, p90s []*big.Int
	for _, block := range hist.Reward {
		if len(block) >= 2 {
			p50s = append(p50s, block[0])
			p90s = append(p90s, block[1])
		}
	}
	return baseFee, medianOf(p50s), medianOf(p90s), nil
}

func medianOf(vals []*big.Int) *big.Int {
	if len(vals) == 0 {
		return big.NewInt(0)
	}
	sorted := make([]*big.Int, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return sorted[len(sorted)/2]
}

// PoolCaller is the subset of rpcpool.Pool this package needs, kept as
// an interface to avoid an import cycle between pkg/signer and
// pkg/rpcpool (rpcpool imports pkg/ethereum, not the reverse).
type PoolCaller interface {
	Call(ctx context.Context, minConsensus int, method string, args ...interface{}) (json.RawMessage, error)
}

// PoolFeeHistorySource queries eth_feeHistory through the RPC pool's
// multi-provider consensus (§4.1) instead of a single endpoint,
// matching SPEC_FULL.md §4.3.2 step 2's "via C1, in one batched call
// where possible" for the gas-fee inputs.
type PoolFeeHistorySource struct {
	Pool         PoolCaller
	MinConsensus int
	BlockCount   int
}

type feeHistoryRPCResult struct {
	OldestBlock   string     `json:"oldestBlock"`
	Reward        [][]string `json:"reward"`
	BaseFeePerGas []string   `json:"baseFeePerGas"`
	GasUsedRatio  []float64  `json:"gasUsedRatio"`
}

func (s *PoolFeeHistorySource) FeeHistorySample(ctx context.Context) (*big.Int, *big.Int, *big.Int, error) {
	k := s.MinConsensus
	if k <= 0 {
		k = 2
	}
	blocks := s.BlockCount
	if blocks <= 0 {
		blocks = 10
	}

	raw, err := s.Pool.Call(ctx, k, "eth_feeHistory", hexutilEncodeInt(blocks), "latest", []float64{50, 90})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("eth_feeHistory: %w", err)
	}

	var resp feeHistoryRPCResult
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, nil, fmt.Errorf("decoding eth_feeHistory: %w", err)
	}
	if len(resp.BaseFeePerGas) == 0 || len(resp.Reward) == 0 {
		return nil, nil, nil, fmt.Errorf("eth_feeHistory: empty response")
	}

	baseFee, ok := new(big.Int).SetString(strings.TrimPrefix(resp.BaseFeePerGas[len(resp.BaseFeePerGas)-1], "0x"), 16)
	if !ok {
		return nil, nil, nil, fmt.Errorf("eth_feeHistory: invalid baseFeePerGas %q", resp.BaseFeePerGas[len(resp.BaseFeePerGas)-1])
	}

	var p50s, p90s []*big.Int
	for _, block := range resp.Reward {
		if len(block) < 2 {
			continue
		}
		p50, ok1 := new(big.Int).SetString(strings.TrimPrefix(block[0], "0x"), 16)
		p90, ok2 := new(big.Int).SetString(strings.TrimPrefix(block[1], "0x"), 16)
		if ok1 && ok2 {
			p50s = append(p50s, p50)
			p90s = append(p90s, p90)
		}
	}
	return baseFee, medianOf(p50s), medianOf(p90s), nil
}

func hexutilEncodeInt(v int) string {
	return fmt.Sprintf("0x%x", v)
}

// FeeCaps is the (tip, fee cap) pair for one submission attempt.
type FeeCaps struct {
	Tip    *big.Int
	FeeCap *big.Int
}

// ComputeFeeCaps implements §4.2's gas-fee policy: tip is the 90th
// percentile of recent priority-fee rewards, fee cap is base_fee*2+tip.
func ComputeFeeCaps(ctx context.Context, src FeeHistorySource) (*FeeCaps, error) {
	baseFee, _, tipP90, err := src.FeeHistorySample(ctx)
	if err != nil {
		return nil, err
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipP90)
	return &FeeCaps{Tip: tipP90, FeeCap: feeCap}, nil
}

// BumpForReplacement increases both caps by at least 12.5%, the minimum
// bump accepted by most mempools to replace a pending transaction at
// the same nonce, per §4.2's "retry of a stuck transaction" policy.
func BumpForReplacement(caps *FeeCaps) *FeeCaps {
	bump := func(v *big.Int) *big.Int {
		// v * 1125 / 1000, i.e. +12.5%
		n := new(big.Int).Mul(v, big.NewInt(1125))
		return n.Div(n, big.NewInt(1000))
	}
	return &FeeCaps{Tip: bump(caps.Tip), FeeCap: bump(caps.FeeCap)}
}
