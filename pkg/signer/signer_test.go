package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testMasterKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLocalGatewayDerivationIsDeterministic(t *testing.T) {
	g, err := NewLocalGateway(testMasterKeyHex)
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	pub1, addr1, err := g.DerivePublicKey(context.Background(), "strategy/1")
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	pub2, addr2, err := g.DerivePublicKey(context.Background(), "strategy/1")
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("expected deterministic address, got %s vs %s", addr1.Hex(), addr2.Hex())
	}
	if string(pub1) != string(pub2) {
		t.Fatal("expected deterministic public key bytes")
	}
}

func TestLocalGatewayDifferentPathsDeriveDifferentKeys(t *testing.T) {
	g, err := NewLocalGateway(testMasterKeyHex)
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	_, addr1, _ := g.DerivePublicKey(context.Background(), "strategy/1")
	_, addr2, _ := g.DerivePublicKey(context.Background(), "strategy/2")
	if addr1 == addr2 {
		t.Fatal("expected distinct addresses for distinct derivation paths")
	}
}

func TestLocalGatewaySignDigestRecoversToDerivedAddress(t *testing.T) {
	g, err := NewLocalGateway(testMasterKeyHex)
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	_, addr, err := g.DerivePublicKey(context.Background(), "strategy/7")
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("hello")))

	sig, err := g.SignDigest(context.Background(), "strategy/7", digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	pub, err := crypto.SigToPub(digest[:], sig[:])
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != addr {
		t.Fatalf("recovered address %s does not match derived address %s", recovered.Hex(), addr.Hex())
	}
}

func TestBuildAndSignProducesValidSignature(t *testing.T) {
	g, err := NewLocalGateway(testMasterKeyHex)
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x00000000000000000000000000000000000001")
	tx, err := BuildAndSign(context.Background(), g, "strategy/1", chainID, 0,
		big.NewInt(1_000_000_000), big.NewInt(50_000_000_000), 21000, to, big.NewInt(0), nil)
	if err != nil {
		t.Fatalf("BuildAndSign: %v", err)
	}
	_, addr, err := g.DerivePublicKey(context.Background(), "strategy/1")
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if sender != addr {
		t.Fatalf("expected sender %s, got %s", addr.Hex(), sender.Hex())
	}
}

func TestComputeFeeCaps(t *testing.T) {
	src := stubFeeHistory{baseFee: big.NewInt(100), p90: big.NewInt(5)}
	caps, err := ComputeFeeCaps(context.Background(), src)
	if err != nil {
		t.Fatalf("ComputeFeeCaps: %v", err)
	}
	if caps.Tip.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected tip=5, got %s", caps.Tip.String())
	}
	wantFeeCap := big.NewInt(205) // 100*2 + 5
	if caps.FeeCap.Cmp(wantFeeCap) != 0 {
		t.Fatalf("expected feeCap=%s, got %s", wantFeeCap.String(), caps.FeeCap.String())
	}
}

func TestBumpForReplacement(t *testing.T) {
	caps := &FeeCaps{Tip: big.NewInt(1000), FeeCap: big.NewInt(2000)}
	bumped := BumpForReplacement(caps)
	if bumped.Tip.Cmp(big.NewInt(1125)) != 0 {
		t.Fatalf("expected tip bumped to 1125, got %s", bumped.Tip.String())
	}
	if bumped.FeeCap.Cmp(big.NewInt(2250)) != 0 {
		t.Fatalf("expected feeCap bumped to 2250, got %s", bumped.FeeCap.String())
	}
}

type stubFeeHistory struct {
	baseFee, p90 *big.Int
}

func (s stubFeeHistory) FeeHistorySample(ctx context.Context) (*big.Int, *big.Int, *big.Int, error) {
	return s.baseFee, big.NewInt(0), s.p90, nil
}
