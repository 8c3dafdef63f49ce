package store

import (
	"errors"
	"testing"
)

func TestGetStrategyNotFound(t *testing.T) {
	s := New(OpenMemDB())
	_, err := s.GetStrategy(3)
	if !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("expected ErrStrategyNotFound, got %v", err)
	}
}

func TestPutAndGetStrategy(t *testing.T) {
	s := New(OpenMemDB())
	st := &Strategy{Key: 7, ManagerAddress: "0xabc", LatestRate: "50000000000000000"}
	if err := s.PutStrategy(st); err != nil {
		t.Fatalf("PutStrategy: %v", err)
	}
	got, err := s.GetStrategy(7)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if got.ManagerAddress != "0xabc" || got.LatestRate != "50000000000000000" {
		t.Fatalf("unexpected roundtrip value: %+v", got)
	}
}

func TestListStrategiesSkipsUnbound(t *testing.T) {
	s := New(OpenMemDB())
	if err := s.PutStrategy(&Strategy{Key: 0, ManagerAddress: "0x0"}); err != nil {
		t.Fatalf("PutStrategy(0): %v", err)
	}
	if err := s.PutStrategy(&Strategy{Key: 2, ManagerAddress: "0x2"}); err != nil {
		t.Fatalf("PutStrategy(2): %v", err)
	}
	got, err := s.ListStrategies(3)
	if err != nil {
		t.Fatalf("ListStrategies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 strategies (key 1 unbound), got %d", len(got))
	}
	if got[0].Key != 0 || got[1].Key != 2 {
		t.Fatalf("unexpected keys: %d, %d", got[0].Key, got[1].Key)
	}
}

func TestGetGlobalDefaultsToFunctional(t *testing.T) {
	s := New(OpenMemDB())
	g, err := s.GetGlobal()
	if err != nil {
		t.Fatalf("GetGlobal: %v", err)
	}
	if g.Halt.Phase != "Functional" {
		t.Fatalf("expected default phase Functional, got %q", g.Halt.Phase)
	}
}

func TestMutateGlobalPersists(t *testing.T) {
	s := New(OpenMemDB())
	err := s.MutateGlobal(func(g *GlobalState) error {
		g.StrategyCount = 5
		g.CyclesBalance = 100
		return nil
	})
	if err != nil {
		t.Fatalf("MutateGlobal: %v", err)
	}
	g, err := s.GetGlobal()
	if err != nil {
		t.Fatalf("GetGlobal: %v", err)
	}
	if g.StrategyCount != 5 || g.CyclesBalance != 100 {
		t.Fatalf("mutation did not persist: %+v", g)
	}
}

func TestMutateGlobalPropagatesError(t *testing.T) {
	s := New(OpenMemDB())
	sentinel := errors.New("boom")
	err := s.MutateGlobal(func(g *GlobalState) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	g, _ := s.GetGlobal()
	if g.StrategyCount != 0 {
		t.Fatalf("expected no persisted mutation on error, got %+v", g)
	}
}

func TestMutateStrategyRoundtrip(t *testing.T) {
	s := New(OpenMemDB())
	if err := s.PutStrategy(&Strategy{Key: 1}); err != nil {
		t.Fatalf("PutStrategy: %v", err)
	}
	err := s.MutateStrategy(1, func(st *Strategy) error {
		st.IsLocked = true
		st.LastLockedAt = 42
		return nil
	})
	if err != nil {
		t.Fatalf("MutateStrategy: %v", err)
	}
	got, err := s.GetStrategy(1)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if !got.IsLocked || got.LastLockedAt != 42 {
		t.Fatalf("mutation did not persist: %+v", got)
	}
}

func TestMutateStrategyMissingPropagatesNotFound(t *testing.T) {
	s := New(OpenMemDB())
	err := s.MutateStrategy(99, func(st *Strategy) error { return nil })
	if !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("expected ErrStrategyNotFound, got %v", err)
	}
}
