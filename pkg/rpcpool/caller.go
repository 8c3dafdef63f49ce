package rpcpool

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ContractCaller adapts the Pool's multi-provider consensus Call into
// go-ethereum's bind.ContractCaller interface, so the read-only Liquity
// bindings in pkg/contracts go through provider consensus (§4.1) rather
// than a single endpoint's eth_call — the "via C1" instruction in
// SPEC_FULL.md §4.3.2 step 2.
type ContractCaller struct {
	Pool         *Pool
	MinConsensus int
}

func (c *ContractCaller) minConsensus() int {
	if c.MinConsensus <= 0 {
		return 2
	}
	return c.MinConsensus
}

func (c *ContractCaller) CallContract(ctx context.Context, call goethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	raw, err := c.Pool.Call(ctx, c.minConsensus(), "eth_call", toCallArg(call), blockArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return decodeHexResult(raw)
}

func (c *ContractCaller) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	raw, err := c.Pool.Call(ctx, c.minConsensus(), "eth_getCode", account, blockArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return decodeHexResult(raw)
}

func blockArg(n *big.Int) string {
	if n == nil {
		return "latest"
	}
	return hexutil.EncodeBig(n)
}

func toCallArg(msg goethereum.CallMsg) map[string]interface{} {
	arg := map[string]interface{}{}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Encode(msg.Data)
	}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From
	}
	if msg.Value != nil {
		arg["value"] = hexutil.EncodeBig(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.EncodeUint64(msg.Gas)
	}
	return arg
}

func decodeHexResult(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding hex result: %w", err)
	}
	return hexutil.Decode(s)
}
