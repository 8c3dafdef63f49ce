// Package ethereum wraps a single JSON-RPC endpoint with the calls the
// strategy and recharge engines need, in the same thin-wrapper shape as
// the retrieval pack's pkg/ethereum/client.go: a *ethclient.Client plus
// chain metadata, with one method per RPC call rather than a generic
// passthrough.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps one provider endpoint's RPC connection.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
	url       string
	chainID   *big.Int
}

// Dial connects to url without a chain-id check; callers that need the
// chain id should call ChainID afterward and compare it against the
// configured value.
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{rpcClient: rc, eth: ethclient.NewClient(rc), url: url}, nil
}

func (c *Client) URL() string { return c.url }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, nil)
}

// PendingNonceAt returns eth_getTransactionCount(addr, "pending").
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, addr)
}

// FeeHistory wraps eth_feeHistory for the gas-fee policy in §4.2: most
// recent blockCount blocks, with rewardPercentiles used to request the
// 50th/90th percentile priority-fee rewards per block.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	return c.eth.FeeHistory(ctx, blockCount, nil, rewardPercentiles)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

// CallContract performs an eth_call against the given message at the
// latest block, used by the read-only Liquity contract bindings.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

// SendRawTransaction broadcasts an already-signed, RLP-encoded
// transaction, matching eth_sendRawTransaction.
func (c *Client) SendRawTransaction(ctx context.Context, signed *types.Transaction) error {
	return c.eth.SendTransaction(ctx, signed)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// Health performs the cheapest possible liveness probe, matching the
// pack's convention of using BlockNumber for health checks.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// RawCall issues an arbitrary JSON-RPC method call, used by the
// provider pool (C1) to compare raw decoded results byte-for-byte
// across providers for consensus.
func (c *Client) RawCall(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return c.rpcClient.CallContext(ctx, result, method, args...)
}

func (c *Client) Close() {
	c.rpcClient.Close()
}
