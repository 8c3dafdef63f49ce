package rpcpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liquity/ir-agent/pkg/ethereum"
)

type rpcEnvelope struct {
	ID json.RawMessage `json:"id"`
}

// fixedResultServer answers every JSON-RPC call with the same raw result.
func fixedResultServer(t *testing.T, resultJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env rpcEnvelope
		json.Unmarshal(body, &env)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, string(env.ID), resultJSON)
	}))
}

func errorServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env rpcEnvelope
		json.Unmarshal(body, &env)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"boom"}}`, string(env.ID))
	}))
}

func dialProvider(t *testing.T, name, url string, weight int) *Provider {
	t.Helper()
	c, err := ethereum.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	return &Provider{Name: name, Client: c, Weight: weight}
}

func TestCallReachesConsensus(t *testing.T) {
	s1 := fixedResultServer(t, `"0x1"`)
	s2 := fixedResultServer(t, `"0x1"`)
	s3 := fixedResultServer(t, `"0x2"`)
	defer s1.Close()
	defer s2.Close()
	defer s3.Close()

	pool := New([]*Provider{
		dialProvider(t, "a", s1.URL, 1),
		dialProvider(t, "b", s2.URL, 1),
		dialProvider(t, "c", s3.URL, 1),
	}, Config{})

	raw, err := pool.Call(context.Background(), 2, "eth_blockNumber")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"0x1"` {
		t.Fatalf("expected consensus result 0x1, got %s", raw)
	}
}

func TestCallDegradesMinConsensusOnFailure(t *testing.T) {
	// Three providers, all return distinct values: no 3-of-3 or 2-of-3
	// agreement is possible, so consensus should fail even after
	// degrading to k=2.
	s1 := fixedResultServer(t, `"0x1"`)
	s2 := fixedResultServer(t, `"0x2"`)
	s3 := fixedResultServer(t, `"0x3"`)
	defer s1.Close()
	defer s2.Close()
	defer s3.Close()

	pool := New([]*Provider{
		dialProvider(t, "a", s1.URL, 1),
		dialProvider(t, "b", s2.URL, 1),
		dialProvider(t, "c", s3.URL, 1),
	}, Config{})

	_, err := pool.Call(context.Background(), 3, "eth_blockNumber")
	if !errors.Is(err, ErrNoConsensus) {
		t.Fatalf("expected ErrNoConsensus, got %v", err)
	}
}

func TestCallNoProvidersLeft(t *testing.T) {
	pool := New(nil, Config{})
	_, err := pool.Call(context.Background(), 2, "eth_blockNumber")
	if err == nil {
		t.Fatal("expected an error with zero providers")
	}
}

func TestBroadcastTreatsAlreadyKnownAsSuccess(t *testing.T) {
	ok := fixedResultServer(t, `"0xabc"`)
	already := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env rpcEnvelope
		json.Unmarshal(body, &env)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"already known"}}`, string(env.ID))
	}))
	defer ok.Close()
	defer already.Close()

	pool := New([]*Provider{
		dialProvider(t, "a", ok.URL, 1),
		dialProvider(t, "b", already.URL, 1),
	}, Config{})

	if err := pool.Broadcast(context.Background(), "0xdeadbeef"); err != nil {
		t.Fatalf("expected Broadcast to succeed, got %v", err)
	}
}

func TestBroadcastAllFail(t *testing.T) {
	s := errorServer(t)
	defer s.Close()
	pool := New([]*Provider{dialProvider(t, "a", s.URL, 1)}, Config{})
	if err := pool.Broadcast(context.Background(), "0xdeadbeef"); err == nil {
		t.Fatal("expected Broadcast to fail when every provider errors")
	}
}

func TestReputationAdjustmentsAffectRanking(t *testing.T) {
	good := fixedResultServer(t, `"0x1"`)
	bad := errorServer(t)
	defer good.Close()
	defer bad.Close()

	pool := New([]*Provider{
		dialProvider(t, "bad", bad.URL, 1),
		dialProvider(t, "good1", good.URL, 1),
		dialProvider(t, "good2", good.URL, 1),
	}, Config{})

	for i := 0; i < 3; i++ {
		pool.Call(context.Background(), 2, "eth_blockNumber")
	}

	ranked := pool.RankedProviders()
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked providers, got %d", len(ranked))
	}
	if ranked[0].Name == "bad" {
		t.Fatalf("expected the erroring provider to rank last, got order %+v", ranked)
	}
	if ranked[len(ranked)-1].Name != "bad" {
		t.Fatalf("expected the erroring provider to rank last, got order %+v", ranked)
	}
}

func TestReputationBoundedByFloorAndCeiling(t *testing.T) {
	s := errorServer(t)
	defer s.Close()
	pool := New([]*Provider{dialProvider(t, "a", s.URL, 1)}, Config{ReputationFloor: -10, ReputationCeiling: 10})
	for i := 0; i < 5; i++ {
		pool.Broadcast(context.Background(), "0xdeadbeef")
	}
	ranked := pool.RankedProviders()
	if ranked[0].Reputation < -10 {
		t.Fatalf("expected reputation floored at -10, got %d", ranked[0].Reputation)
	}
}

func TestCallRespectsContextTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		io.ReadAll(r.Body)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	}))
	defer slow.Close()

	// Two providers so that k=2 is satisfiable and the failure comes from
	// the expired context rather than from too few providers.
	pool := New([]*Provider{dialProvider(t, "slow1", slow.URL, 1), dialProvider(t, "slow2", slow.URL, 1)}, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	_, err := pool.Call(ctx, 2, "eth_blockNumber")
	if err == nil {
		t.Fatal("expected an error for an already-expired context")
	}
}
