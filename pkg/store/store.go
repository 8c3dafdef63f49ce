package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// key layout, mirroring the pack's ledger.go package-level key vars.
var (
	keyGlobalState   = []byte("sys/global")
	keyStrategyPfx   = []byte("strategy/")
)

func strategyKey(key uint32) []byte {
	return append(append([]byte{}, keyStrategyPfx...), strategyKeyBytes(key)...)
}

// Store provides typed, versioned persistent containers for strategies
// and the global singleton record (§4.7). Unlike the pack's LedgerStore
// — which assumes a single-threaded consensus-commit caller and
// documents that external callers must serialize access themselves —
// this module's host process is an ordinary multi-goroutine Go binary,
// not a cooperative single-threaded runtime, so Store wraps every
// operation in its own mutex rather than relying on an external
// single-writer guarantee.
type Store struct {
	mu sync.Mutex
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) GetStrategy(key uint32) (*Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getStrategyLocked(key)
}

func (s *Store) getStrategyLocked(key uint32) (*Strategy, error) {
	raw, err := s.kv.Get(strategyKey(key))
	if err != nil {
		return nil, fmt.Errorf("loading strategy %d: %w", key, err)
	}
	if raw == nil {
		return nil, ErrStrategyNotFound
	}
	var st Strategy
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding strategy %d: %w", key, err)
	}
	return &st, nil
}

func (s *Store) PutStrategy(st *Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putStrategyLocked(st)
}

func (s *Store) putStrategyLocked(st *Strategy) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding strategy %d: %w", st.Key, err)
	}
	if err := s.kv.Set(strategyKey(st.Key), raw); err != nil {
		return fmt.Errorf("persisting strategy %d: %w", st.Key, err)
	}
	return nil
}

// ListStrategies returns every stored strategy with a key in [0, count),
// in key order, skipping keys that have no record yet. Records created
// by assign_keys but not yet bound by mint_strategy are included. count
// is the high-water mark returned by the last start(n) call.
func (s *Store) ListStrategies(count uint32) ([]*Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Strategy, 0, count)
	for k := uint32(0); k < count; k++ {
		st, err := s.getStrategyLocked(k)
		if err == ErrStrategyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) GetGlobal() (*GlobalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getGlobalLocked()
}

func (s *Store) getGlobalLocked() (*GlobalState, error) {
	raw, err := s.kv.Get(keyGlobalState)
	if err != nil {
		return nil, fmt.Errorf("loading global state: %w", err)
	}
	if raw == nil {
		return &GlobalState{Halt: HaltState{Phase: "Functional"}}, nil
	}
	var g GlobalState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decoding global state: %w", err)
	}
	return &g, nil
}

func (s *Store) PutGlobal(g *GlobalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding global state: %w", err)
	}
	return s.kv.Set(keyGlobalState, raw)
}

// MutateGlobal loads, applies fn, and persists the global state as one
// logical unit, serialized by the store's mutex — the closest Go
// equivalent of the spec's "single-threaded execution model" atomicity
// guarantee for global-state updates.
func (s *Store) MutateGlobal(fn func(*GlobalState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.getGlobalLocked()
	if err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding global state: %w", err)
	}
	return s.kv.Set(keyGlobalState, raw)
}

// MutateStrategy loads, applies fn, and persists one strategy as one
// logical unit. Lock acquisition (§5) is implemented by callers via fn,
// since the decision of whether the lock is available depends on the
// current time, which is not this store's concern.
func (s *Store) MutateStrategy(key uint32, fn func(*Strategy) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.getStrategyLocked(key)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.putStrategyLocked(st)
}
