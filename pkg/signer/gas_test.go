package signer

import (
	"context"
	"encoding/json"
	"testing"
)

type stubPoolCaller struct {
	raw json.RawMessage
	err error
}

func (s stubPoolCaller) Call(ctx context.Context, minConsensus int, method string, args ...interface{}) (json.RawMessage, error) {
	return s.raw, s.err
}

func TestPoolFeeHistorySampleDecodesHexFields(t *testing.T) {
	raw := json.RawMessage(`{
		"oldestBlock": "0x1",
		"baseFeePerGas": ["0x64", "0x6e"],
		"reward": [["0x5", "0xa"], ["0x3", "0xc"]],
		"gasUsedRatio": [0.5, 0.6]
	}`)
	src := &PoolFeeHistorySource{Pool: stubPoolCaller{raw: raw}}
	baseFee, p50, p90, err := src.FeeHistorySample(context.Background())
	if err != nil {
		t.Fatalf("FeeHistorySample: %v", err)
	}
	if baseFee.Int64() != 0x6e {
		t.Fatalf("expected baseFee=0x6e (last entry), got %s", baseFee.String())
	}
	if p50.Int64() != 5 {
		t.Fatalf("expected median p50=5 (upper of sorted [3,5]), got %s", p50.String())
	}
	if p90.Int64() != 12 {
		t.Fatalf("expected median p90=12 (upper of sorted [10,12]), got %s", p90.String())
	}
}

func TestPoolFeeHistorySampleEmptyResponse(t *testing.T) {
	raw := json.RawMessage(`{"oldestBlock":"0x1","baseFeePerGas":[],"reward":[],"gasUsedRatio":[]}`)
	src := &PoolFeeHistorySource{Pool: stubPoolCaller{raw: raw}}
	_, _, _, err := src.FeeHistorySample(context.Background())
	if err == nil {
		t.Fatal("expected an error for an empty fee history response")
	}
}

func TestMedianOfEmpty(t *testing.T) {
	if got := medianOf(nil); got.Sign() != 0 {
		t.Fatalf("expected zero median for empty input, got %s", got.String())
	}
}
