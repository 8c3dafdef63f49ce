// Package halting implements the Halting Supervisor (C7): the weekly
// health check that progressively winds the fleet down when strategies
// keep failing or the whole fleet goes quiet, per SPEC_FULL.md §4.5.
// Grounded on pkg/strategy/engine.go's Config/New shape and on the
// retrieval pack's HealthStatus-as-persisted-phase idiom in main.go,
// generalized from a single boolean health flag to the three-phase
// Functional/HaltingInProgress/Halted lifecycle.
package halting

import (
	"context"
	"log"
	"time"

	"github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/store"
)

const (
	phaseFunctional        = "Functional"
	phaseHaltingInProgress = "HaltingInProgress"
	phaseHalted            = "Halted"
)

// Supervisor evaluates fleet health on a weekly tick and persists the
// resulting phase transition to store.GlobalState.Halt. It implements
// pkg/strategy.HaltChecker so the Strategy Engine can refuse execution
// once the fleet is Halted.
type Supervisor struct {
	store   *store.Store
	journal *journal.Journal

	successFloor  float64
	fleetIdleDays int
	warningDur    time.Duration

	logger *log.Logger
}

type Config struct {
	Store   *store.Store
	Journal *journal.Journal

	Constants config.SystemConstants

	Logger *log.Logger
}

func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HaltingSupervisor] ", log.LstdFlags)
	}
	floor := cfg.Constants.HaltSuccessFloor
	if floor == 0 {
		floor = 0.5
	}
	idleDays := cfg.Constants.HaltFleetIdleDays
	if idleDays == 0 {
		idleDays = 30
	}
	warning := cfg.Constants.HaltingWarningDur.Duration
	if warning == 0 {
		warning = 7 * 24 * time.Hour
	}
	return &Supervisor{
		store:         cfg.Store,
		journal:       cfg.Journal,
		successFloor:  floor,
		fleetIdleDays: idleDays,
		warningDur:    warning,
		logger:        logger,
	}
}

// IsHalted satisfies pkg/strategy.HaltChecker.
func (s *Supervisor) IsHalted() bool {
	g, err := s.store.GetGlobal()
	if err != nil {
		s.logger.Printf("reading global state: %v", err)
		return false
	}
	return g.Halt.Phase == phaseHalted
}

// Tick runs one weekly evaluation: a strategy whose trailing 7-day
// execution success ratio falls below the configured floor, or a fleet
// that has made no successful on-chain rate adjustment in
// fleet_idle_days, starts (or continues) the halting countdown; a fleet
// that recovers on both counts while still only HaltingInProgress steps
// back to Functional rather than needing a manual unhalt.
func (s *Supervisor) Tick(ctx context.Context, now time.Time, strategyKeys []uint32) error {
	unhealthy := s.anyStrategyUnhealthy(now, strategyKeys)
	idle := s.fleetIdle(now)

	return s.store.MutateGlobal(func(gs *store.GlobalState) error {
		switch gs.Halt.Phase {
		case phaseHalted:
			// Terminal; recovering from Halted is an operator action this
			// package does not expose, since by the time the fleet is
			// Halted there is no running timer left to drive a recovery.
			return nil

		case phaseHaltingInProgress:
			if !unhealthy && !idle {
				s.logger.Printf("fleet health recovered during halting countdown, reverting to Functional")
				gs.Halt = store.HaltState{Phase: phaseFunctional}
				return nil
			}
			if now.Unix() >= gs.Halt.HaltsAt {
				s.logger.Printf("halting countdown elapsed, transitioning to Halted")
				gs.Halt = store.HaltState{Phase: phaseHalted, HaltedAt: now.Unix()}
			}
			return nil

		default: // Functional
			if unhealthy || idle {
				haltsAt := now.Add(s.warningDur).Unix()
				s.logger.Printf("fleet health degraded, starting halting countdown, halts_at=%d", haltsAt)
				gs.Halt = store.HaltState{Phase: phaseHaltingInProgress, HaltsAt: haltsAt}
			}
			return nil
		}
	})
}

func (s *Supervisor) anyStrategyUnhealthy(now time.Time, keys []uint32) bool {
	since := now.Add(-7 * 24 * time.Hour)
	entries := s.journal.EntriesSince(since)

	for _, key := range keys {
		total, ok := 0, 0
		for _, e := range entries {
			if e.Type != journal.TypeExecutionResult || e.StrategyID == nil || *e.StrategyID != key {
				continue
			}
			total++
			if e.OK {
				ok++
			}
		}
		if total == 0 {
			continue // no executions yet this window; not evidence of failure
		}
		if float64(ok)/float64(total) < s.successFloor {
			return true
		}
	}
	return false
}

// fleetIdle reports whether no strategy has posted a successful,
// on-chain rate adjustment (non-empty tx hash) in fleet_idle_days.
func (s *Supervisor) fleetIdle(now time.Time) bool {
	since := now.Add(-time.Duration(s.fleetIdleDays) * 24 * time.Hour)
	entries := s.journal.EntriesSince(since)
	for _, e := range entries {
		if e.Type == journal.TypeRateAdjustment && e.OK && e.TxHash != "" {
			return false
		}
	}
	return true
}
