package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/liquity/ir-agent/pkg/recharge"
	"github.com/liquity/ir-agent/pkg/store"
	"github.com/liquity/ir-agent/pkg/strategy"
)

type fakeGateway struct {
	nextAddr byte
}

func (g *fakeGateway) DerivePublicKey(ctx context.Context, path string) ([]byte, common.Address, error) {
	g.nextAddr++
	var addr common.Address
	addr[19] = g.nextAddr
	return []byte{g.nextAddr}, addr, nil
}

func (g *fakeGateway) SignDigest(ctx context.Context, path string, digest [32]byte) ([65]byte, error) {
	return [65]byte{}, nil
}

type fakeExecutor struct {
	calls int32
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, key uint32) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

type fakeRecharge struct {
	mintCalls int32
}

func (f *fakeRecharge) MintOnce(ctx context.Context) error {
	atomic.AddInt32(&f.mintCalls, 1)
	return nil
}

func (f *fakeRecharge) SwapCkETH(ctx context.Context, recipient string, attachedCycles uint64) (*recharge.SwapResult, error) {
	return nil, nil
}

type fakeHalt struct {
	calls int32
}

func (f *fakeHalt) Tick(ctx context.Context, now time.Time, strategyKeys []uint32) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *fakeGateway, *fakeExecutor) {
	t.Helper()
	kv := store.OpenMemDB()
	st := store.New(kv)
	gw := &fakeGateway{}
	exec := &fakeExecutor{}
	s := New(Config{
		Store:    st,
		Gateway:  gw,
		Engine:   exec,
		Recharge: &fakeRecharge{},
		Halt:     &fakeHalt{},
	})
	return s, st, gw, exec
}

func TestStartGrowsStrategyCount(t *testing.T) {
	s, st, _, _ := newTestScheduler(t)
	if err := s.Start(5); err != nil {
		t.Fatalf("Start: %v", err)
	}
	g, err := st.GetGlobal()
	if err != nil {
		t.Fatalf("GetGlobal: %v", err)
	}
	if g.StrategyCount != 5 {
		t.Fatalf("expected StrategyCount=5, got %d", g.StrategyCount)
	}
	if err := s.Start(8); err != nil {
		t.Fatalf("Start (grow again): %v", err)
	}
}

func TestStartRefusesToShrink(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	if err := s.Start(5); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(3); err == nil {
		t.Fatal("expected an error when shrinking the strategy count")
	}
}

func TestAssignKeysRequiresStart(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	if err := s.AssignKeys(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestAssignKeysDerivesOneEOAPerKey(t *testing.T) {
	s, st, _, _ := newTestScheduler(t)
	if err := s.Start(3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.AssignKeys(context.Background()); err != nil {
		t.Fatalf("AssignKeys: %v", err)
	}
	for key := uint32(0); key < 3; key++ {
		got, err := st.GetStrategy(key)
		if err != nil {
			t.Fatalf("GetStrategy(%d): %v", key, err)
		}
		if got.EOAAddress == "" {
			t.Fatalf("expected strategy %d to have an EOA address", key)
		}
	}
}

func TestAssignKeysIsIdempotent(t *testing.T) {
	s, st, _, _ := newTestScheduler(t)
	if err := s.Start(2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.AssignKeys(context.Background()); err != nil {
		t.Fatalf("AssignKeys: %v", err)
	}
	first, err := st.GetStrategy(0)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if err := s.AssignKeys(context.Background()); err != nil {
		t.Fatalf("AssignKeys (second call): %v", err)
	}
	second, err := st.GetStrategy(0)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if first.EOAAddress != second.EOAAddress {
		t.Fatalf("expected AssignKeys to preserve an already-derived address: %s vs %s", first.EOAAddress, second.EOAAddress)
	}
}

func TestMintStrategyRejectsOutOfRangeKey(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	if err := s.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := s.MintStrategy(StrategySeed{Key: 5})
	if !errors.Is(err, ErrKeyOutOfRange) {
		t.Fatalf("expected ErrKeyOutOfRange, got %v", err)
	}
}

func TestMintStrategyBindsFieldsAndRefusesReentry(t *testing.T) {
	s, st, _, _ := newTestScheduler(t)
	if err := s.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	seed := StrategySeed{
		Key:                   0,
		ManagerAddress:        "0xmanager",
		CollateralIndex:       2,
		UpfrontFeePeriodSec:   604800,
		TargetMinDebtFraction: "100000000000000000",
	}
	if err := s.MintStrategy(seed); err != nil {
		t.Fatalf("MintStrategy: %v", err)
	}
	got, err := st.GetStrategy(0)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if got.ManagerAddress != "0xmanager" || got.CollateralIndex != 2 {
		t.Fatalf("unexpected strategy state: %+v", got)
	}
	if err := s.MintStrategy(seed); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted on re-entry, got %v", err)
	}
}

func TestSetBatchManagerRefusesReentry(t *testing.T) {
	s, st, _, _ := newTestScheduler(t)
	st.PutStrategy(&store.Strategy{Key: 0})
	if err := s.SetBatchManager(0, "0xbatch", "50000000000000000"); err != nil {
		t.Fatalf("SetBatchManager: %v", err)
	}
	got, err := st.GetStrategy(0)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if got.BatchManagerAddress != "0xbatch" || got.LatestRate != "50000000000000000" {
		t.Fatalf("unexpected strategy state: %+v", got)
	}
	if err := s.SetBatchManager(0, "0xother", "1"); !errors.Is(err, ErrBatchManagerSet) {
		t.Fatalf("expected ErrBatchManagerSet, got %v", err)
	}
}

func TestStartTimersRefusesSecondCall(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.StartTimers(ctx); err != nil {
		t.Fatalf("StartTimers: %v", err)
	}
	defer s.Stop()
	if err := s.StartTimers(ctx); !errors.Is(err, ErrTimersAlreadyActive) {
		t.Fatalf("expected ErrTimersAlreadyActive, got %v", err)
	}
}

func TestStrategyTickExecutesEveryAssignedKey(t *testing.T) {
	s, _, _, exec := newTestScheduler(t)
	if err := s.Start(4); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.strategyTick(context.Background())
	if got := atomic.LoadInt32(&exec.calls); got != 4 {
		t.Fatalf("expected 4 Execute calls, got %d", got)
	}
}

func TestStrategyTickToleratesLockedStrategies(t *testing.T) {
	s, _, _, exec := newTestScheduler(t)
	exec.err = strategy.ErrLocked
	if err := s.Start(2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Should not panic or block despite every Execute call failing with
	// ErrLocked; the tick logs and moves on.
	s.strategyTick(context.Background())
	if got := atomic.LoadInt32(&exec.calls); got != 2 {
		t.Fatalf("expected 2 Execute calls, got %d", got)
	}
}

func TestHaltTickInvokesSupervisorWithAllKeys(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	halt := s.halt.(*fakeHalt)
	if err := s.Start(3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.haltTick(context.Background())
	if got := atomic.LoadInt32(&halt.calls); got != 1 {
		t.Fatalf("expected 1 halt tick call, got %d", got)
	}
}

func TestMintTickInvokesRecharge(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	rc := s.recharge.(*fakeRecharge)
	s.mintTick(context.Background())
	if got := atomic.LoadInt32(&rc.mintCalls); got != 1 {
		t.Fatalf("expected 1 mint call, got %d", got)
	}
}
