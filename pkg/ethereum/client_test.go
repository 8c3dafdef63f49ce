package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// jsonRPCServer answers every request with resultsByMethod[method], falling
// back to def when the method isn't present.
func jsonRPCServer(t *testing.T, resultsByMethod map[string]string, def string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env rpcEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		result, ok := resultsByMethod[env.Method]
		if !ok {
			result = def
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, string(env.ID), result)
	}))
}

func TestDialAndBlockNumber(t *testing.T) {
	s := jsonRPCServer(t, map[string]string{"eth_blockNumber": `"0x2a"`}, `null`)
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if c.URL() != s.URL {
		t.Fatalf("expected URL() to return %s, got %s", s.URL, c.URL())
	}

	n, err := c.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected block number 42, got %d", n)
	}
}

func TestChainIDCachesAfterFirstCall(t *testing.T) {
	calls := 0
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env rpcEnvelope
		json.Unmarshal(body, &env)
		if env.Method == "eth_chainId" {
			calls++
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x1"}`, string(env.ID))
	}))
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	first, err := c.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID: %v", err)
	}
	if first.Int64() != 1 {
		t.Fatalf("expected chain id 1, got %s", first)
	}
	second, err := c.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID (cached): %v", err)
	}
	if second.Int64() != 1 {
		t.Fatalf("expected cached chain id 1, got %s", second)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one eth_chainId round trip, got %d", calls)
	}
}

func TestBalanceAt(t *testing.T) {
	s := jsonRPCServer(t, map[string]string{"eth_getBalance": `"0x64"`}, `null`)
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	bal, err := c.BalanceAt(context.Background(), common.HexToAddress("0x1"))
	if err != nil {
		t.Fatalf("BalanceAt: %v", err)
	}
	if bal.Int64() != 100 {
		t.Fatalf("expected balance 100, got %s", bal)
	}
}

func TestPendingNonceAt(t *testing.T) {
	s := jsonRPCServer(t, map[string]string{"eth_getTransactionCount": `"0x5"`}, `null`)
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	nonce, err := c.PendingNonceAt(context.Background(), common.HexToAddress("0x1"))
	if err != nil {
		t.Fatalf("PendingNonceAt: %v", err)
	}
	if nonce != 5 {
		t.Fatalf("expected nonce 5, got %d", nonce)
	}
}

func TestHealthSucceedsWhenBlockNumberSucceeds(t *testing.T) {
	s := jsonRPCServer(t, map[string]string{"eth_blockNumber": `"0x1"`}, `null`)
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("expected Health to succeed, got %v", err)
	}
}

func TestHealthFailsWhenServerUnreachable(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := s.URL
	s.Close()

	c, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected Health to fail against a closed server")
	}
}

func TestRawCallDecodesIntoProvidedTarget(t *testing.T) {
	s := jsonRPCServer(t, map[string]string{"eth_gasPrice": `"0x3b9aca00"`}, `null`)
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var result string
	if err := c.RawCall(context.Background(), &result, "eth_gasPrice"); err != nil {
		t.Fatalf("RawCall: %v", err)
	}
	if result != "0x3b9aca00" {
		t.Fatalf("expected raw hex string result, got %q", result)
	}
}

func TestCallRespectsContextTimeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		io.ReadAll(r.Body)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	}))
	defer s.Close()

	c, err := Dial(context.Background(), s.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	if _, err := c.BlockNumber(ctx); err == nil {
		t.Fatal("expected an error for an already-expired context")
	}
}
