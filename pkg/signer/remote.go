package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// RemoteGateway satisfies Gateway by delegating derivation and signing
// to an HTTP signer service (AGENT_SIGNER_URL), the production
// counterpart to LocalGateway: the actual threshold-ECDSA key material
// never enters this process. The wire shape mirrors pkg/server's plain
// JSON request/response convention rather than introducing a second
// RPC protocol into the agent.
type RemoteGateway struct {
	baseURL string
	client  *http.Client
}

func NewRemoteGateway(baseURL string) *RemoteGateway {
	return &RemoteGateway{baseURL: baseURL, client: &http.Client{}}
}

type derivePublicKeyRequest struct {
	Path string `json:"path"`
}

type derivePublicKeyResponse struct {
	PublicKeyHex string `json:"public_key_hex"`
	Address      string `json:"address"`
}

func (g *RemoteGateway) DerivePublicKey(ctx context.Context, path string) ([]byte, common.Address, error) {
	var resp derivePublicKeyResponse
	if err := g.post(ctx, "/derive_public_key", derivePublicKeyRequest{Path: path}, &resp); err != nil {
		return nil, common.Address{}, err
	}
	pub, err := hex.DecodeString(trimHexPrefix(resp.PublicKeyHex))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("signer: decoding public key: %w", err)
	}
	return pub, common.HexToAddress(resp.Address), nil
}

type signDigestRequest struct {
	Path      string `json:"path"`
	DigestHex string `json:"digest_hex"`
}

type signDigestResponse struct {
	SignatureHex string `json:"signature_hex"`
}

func (g *RemoteGateway) SignDigest(ctx context.Context, path string, digest [32]byte) ([65]byte, error) {
	var resp signDigestResponse
	req := signDigestRequest{Path: path, DigestHex: "0x" + hex.EncodeToString(digest[:])}
	if err := g.post(ctx, "/sign_digest", req, &resp); err != nil {
		return [65]byte{}, err
	}
	sig, err := hex.DecodeString(trimHexPrefix(resp.SignatureHex))
	if err != nil {
		return [65]byte{}, fmt.Errorf("signer: decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return [65]byte{}, fmt.Errorf("%w: expected 65-byte signature, got %d", ErrSignatureFailed, len(sig))
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

func (g *RemoteGateway) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("signer: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("signer: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: signer gateway returned status %d", ErrSignatureFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("signer: decoding response: %w", err)
	}
	return nil
}
