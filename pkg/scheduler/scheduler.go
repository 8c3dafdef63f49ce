// Package scheduler implements the Scheduler/Entrypoints component
// (C8): the public operation dispatch (start, assign_keys,
// mint_strategy, set_batch_manager, start_timers) and the timer wiring
// that drives the Strategy Engine, Recharge Engine, and Halting
// Supervisor on their respective cadences, per SPEC_FULL.md §4.1/§4.8.
//
// Grounded on the retrieval pack's root main.go, which owns exactly
// this kind of top-level timer/goroutine wiring over its component
// structs rather than burying it inside any one package.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/halting"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/recharge"
	"github.com/liquity/ir-agent/pkg/signer"
	"github.com/liquity/ir-agent/pkg/store"
	"github.com/liquity/ir-agent/pkg/strategy"
)

// StrategyExecutor is the subset of *strategy.Engine the scheduler
// drives on the hourly tick.
type StrategyExecutor interface {
	Execute(ctx context.Context, key uint32) error
}

// RechargeDriver is the subset of *recharge.Engine the scheduler drives
// on the 24h mint tick and the swap_cketh entrypoint.
type RechargeDriver interface {
	MintOnce(ctx context.Context) error
	SwapCkETH(ctx context.Context, recipient string, attachedCycles uint64) (*recharge.SwapResult, error)
}

// HaltTicker is the subset of *halting.Supervisor the scheduler drives
// on the weekly tick.
type HaltTicker interface {
	Tick(ctx context.Context, now time.Time, strategyKeys []uint32) error
}

// Scheduler owns no durable state beyond what it reads through Store;
// ControllersBlackholed there is what makes start_timers idempotent
// across restarts, not anything held in this struct.
type Scheduler struct {
	store    *store.Store
	journal  *journal.Journal
	gateway  signer.Gateway
	engine   StrategyExecutor
	recharge RechargeDriver
	halt     HaltTicker

	tickInterval   time.Duration
	mintInterval   time.Duration
	haltInterval   time.Duration

	logger *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Config struct {
	Store    *store.Store
	Journal  *journal.Journal
	Gateway  signer.Gateway
	Engine   StrategyExecutor
	Recharge RechargeDriver
	Halt     HaltTicker

	Constants config.SystemConstants

	Logger *log.Logger
}

func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		store:        cfg.Store,
		journal:      cfg.Journal,
		gateway:      cfg.Gateway,
		engine:       cfg.Engine,
		recharge:     cfg.Recharge,
		halt:         cfg.Halt,
		tickInterval: durOr(cfg.Constants.StrategyTickInterval.Duration, time.Hour),
		mintInterval: durOr(cfg.Constants.MintTickInterval.Duration, 24*time.Hour),
		haltInterval: durOr(cfg.Constants.HaltingTickInterval.Duration, 7*24*time.Hour),
		logger:       logger,
	}
}

func durOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// Start implements start(n): records the fleet's high-water mark. It may
// be called again with a larger n to grow the fleet, but never to
// shrink it, matching "assign_keys never re-derives an existing key".
func (s *Scheduler) Start(count uint32) error {
	return s.store.MutateGlobal(func(gs *store.GlobalState) error {
		if count < gs.StrategyCount {
			return fmt.Errorf("scheduler: cannot shrink strategy count from %d to %d", gs.StrategyCount, count)
		}
		gs.StrategyCount = count
		return nil
	})
}

// AssignKeys implements assign_keys: derives one EOA per strategy key in
// [0, count) that doesn't have one yet, creating a placeholder Strategy
// record first if mint_strategy hasn't run for that key.
func (s *Scheduler) AssignKeys(ctx context.Context) error {
	g, err := s.store.GetGlobal()
	if err != nil {
		return err
	}
	if g.StrategyCount == 0 {
		return ErrNotStarted
	}

	for key := uint32(0); key < g.StrategyCount; key++ {
		if err := s.assignOne(ctx, key); err != nil {
			return fmt.Errorf("assign_keys: strategy %d: %w", key, err)
		}
	}
	return nil
}

func (s *Scheduler) assignOne(ctx context.Context, key uint32) error {
	st, err := s.store.GetStrategy(key)
	if errors.Is(err, store.ErrStrategyNotFound) {
		st = &store.Strategy{Key: key}
		if err := s.store.PutStrategy(st); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if st.EOAAddress != "" {
		return nil
	}

	pub, addr, err := s.gateway.DerivePublicKey(ctx, strategyPath(key))
	if err != nil {
		return fmt.Errorf("deriving key: %w", err)
	}
	return s.store.MutateStrategy(key, func(fresh *store.Strategy) error {
		fresh.EOAAddress = addr.Hex()
		fresh.EOAPublicKeyHex = fmt.Sprintf("0x%x", pub)
		return nil
	})
}

func strategyPath(key uint32) string {
	return fmt.Sprintf("strategy/%d", key)
}

// StrategySeed is the caller-supplied immutable settings for one batch,
// matching config.StrategySeed's shape but accepted as a direct
// mint_strategy argument rather than only from the YAML bootstrap list.
type StrategySeed = config.StrategySeed

// MintStrategy implements mint_strategy(input): binds the immutable
// on-chain addresses and policy settings to a key in [0, count),
// creating the key's Strategy record first if assign_keys has not yet
// created it. It is one-shot per key: calling it again once
// ManagerAddress is set returns ErrAlreadyMinted.
func (s *Scheduler) MintStrategy(seed StrategySeed) error {
	g, err := s.store.GetGlobal()
	if err != nil {
		return err
	}
	if seed.Key >= g.StrategyCount {
		return ErrKeyOutOfRange
	}
	if _, err := s.store.GetStrategy(seed.Key); errors.Is(err, store.ErrStrategyNotFound) {
		if err := s.store.PutStrategy(&store.Strategy{Key: seed.Key}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return s.store.MutateStrategy(seed.Key, func(st *store.Strategy) error {
		if st.ManagerAddress != "" {
			return ErrAlreadyMinted
		}
		st.ManagerAddress = seed.ManagerAddress
		st.HintHelperAddress = seed.HintHelperAddress
		st.MultiTroveGetterAddress = seed.MultiTroveGetterAddr
		st.SortedTrovesAddress = seed.SortedTrovesAddress
		st.CollateralRegistryAddr = seed.CollateralRegistryAddr
		st.CollateralIndex = seed.CollateralIndex
		st.UpfrontFeePeriodSec = seed.UpfrontFeePeriodSec
		st.TargetMinDebtFraction = seed.TargetMinDebtFraction
		st.RPCPrincipal = seed.RPCPrincipal
		return nil
	})
}

// SetBatchManager implements set_batch_manager(key, addr, rate): a
// one-shot binding of the already-deployed batch manager contract
// address and its starting rate, separate from mint_strategy because in
// a real deployment the batch manager is deployed only after the
// strategy's EOA address is known (it is passed to the constructor).
func (s *Scheduler) SetBatchManager(key uint32, address, initialRate string) error {
	return s.store.MutateStrategy(key, func(st *store.Strategy) error {
		if st.BatchManagerAddress != "" {
			return ErrBatchManagerSet
		}
		st.BatchManagerAddress = address
		st.LatestRate = initialRate
		return nil
	})
}

// StartTimers implements start_timers(): launches the hourly strategy
// tick, the 24h mint tick, and the weekly halting tick as background
// goroutines, and flags ControllersBlackholed so a second call (e.g.
// after a restart that re-runs bootstrap) is rejected rather than
// launching a duplicate set of timers.
func (s *Scheduler) StartTimers(ctx context.Context) error {
	if err := s.store.MutateGlobal(func(gs *store.GlobalState) error {
		if gs.ControllersBlackholed {
			return ErrTimersAlreadyActive
		}
		gs.ControllersBlackholed = true
		return nil
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	go s.runTicker(runCtx, s.tickInterval, s.strategyTick)
	go s.runTicker(runCtx, s.mintInterval, s.mintTick)
	go s.runTicker(runCtx, s.haltInterval, s.haltTick)
	return nil
}

// Stop cancels all running timers; used for graceful process shutdown,
// not part of the spec's public operation surface.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scheduler) strategyTick(ctx context.Context) {
	g, err := s.store.GetGlobal()
	if err != nil {
		s.logger.Printf("strategy tick: reading global state: %v", err)
		return
	}
	var wg sync.WaitGroup
	for key := uint32(0); key < g.StrategyCount; key++ {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.engine.Execute(ctx, key); err != nil && !errors.Is(err, strategy.ErrLocked) {
				s.logger.Printf("strategy %d: tick failed: %v", key, err)
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) mintTick(ctx context.Context) {
	if err := s.recharge.MintOnce(ctx); err != nil {
		s.logger.Printf("mint tick: %v", err)
	}
}

func (s *Scheduler) haltTick(ctx context.Context) {
	g, err := s.store.GetGlobal()
	if err != nil {
		s.logger.Printf("halting tick: reading global state: %v", err)
		return
	}
	keys := make([]uint32, g.StrategyCount)
	for i := range keys {
		keys[i] = uint32(i)
	}
	if err := s.halt.Tick(ctx, time.Now(), keys); err != nil {
		s.logger.Printf("halting tick: %v", err)
	}
}
