// Package signer implements the Signer Gateway (C2): a facade over
// threshold-ECDSA key derivation and digest signing, plus EIP-1559
// transaction assembly and the gas-fee policy of SPEC_FULL.md §4.2.
//
// The Gateway interface is the abstraction a real deployment's
// threshold-ECDSA host would satisfy; LocalGateway is a development
// stand-in backed by an ordinary ECDSA key, in the same spirit as the
// retrieval pack's ethereum/client.go CreateTransactor helper, which
// also signs with a locally held key rather than a remote enclave.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Gateway derives EOA keys and signs digests on behalf of strategies,
// keyed by an opaque derivation path (in production, the strategy key
// encoded as a tECDSA derivation path component).
type Gateway interface {
	DerivePublicKey(ctx context.Context, path string) (pubKeyCompressed []byte, address common.Address, err error)
	SignDigest(ctx context.Context, path string, digest [32]byte) (signature [65]byte, err error)
}

// LocalGateway derives deterministic per-path keys from a single master
// private key by HMAC-style path hashing. It exists for development and
// test environments where no threshold-ECDSA host is available; it is
// not used when AGENT_SIGNER_URL points at a remote gateway.
type LocalGateway struct {
	master *ecdsa.PrivateKey
}

func NewLocalGateway(masterKeyHex string) (*LocalGateway, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(masterKeyHex))
	if err != nil {
		return nil, fmt.Errorf("parsing signer master key: %w", err)
	}
	return &LocalGateway{master: key}, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (g *LocalGateway) deriveKey(path string) (*ecdsa.PrivateKey, error) {
	h := crypto.Keccak256(g.master.D.Bytes(), []byte(path))
	d := new(big.Int).SetBytes(h)
	d.Mod(d, crypto.S256().Params().N)
	if d.Sign() == 0 {
		d.SetInt64(1)
	}
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = crypto.S256()
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = crypto.S256().ScalarBaseMult(d.Bytes())
	return priv, nil
}

func (g *LocalGateway) DerivePublicKey(_ context.Context, path string) ([]byte, common.Address, error) {
	priv, err := g.deriveKey(path)
	if err != nil {
		return nil, common.Address{}, err
	}
	compressed := crypto.CompressPubkey(&priv.PublicKey)
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	return compressed, addr, nil
}

func (g *LocalGateway) SignDigest(_ context.Context, path string, digest [32]byte) ([65]byte, error) {
	priv, err := g.deriveKey(path)
	if err != nil {
		return [65]byte{}, err
	}
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return [65]byte{}, fmt.Errorf("%w: %v", ErrSignatureFailed, err)
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

// BuildAndSign assembles an EIP-1559 transaction from its fields, signs
// its hash through the gateway, and returns the fully signed
// transaction ready for broadcast via the RPC pool.
func BuildAndSign(ctx context.Context, gw Gateway, path string, chainID *big.Int, nonce uint64, tip, feeCap *big.Int, gasLimit uint64, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	txData := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	}
	unsigned := types.NewTx(txData)

	signer := types.LatestSignerForChainID(chainID)
	hash := signer.Hash(unsigned)

	sig, err := gw.SignDigest(ctx, path, hash)
	if err != nil {
		return nil, err
	}

	signed, err := unsigned.WithSignature(signer, sig[:])
	if err != nil {
		return nil, fmt.Errorf("attaching signature: %w", err)
	}
	return signed, nil
}
