// Package store implements the Stable Store (C4): a durable, typed
// mapping of strategy state and global counters, grounded on the
// retrieval pack's pkg/kvdb.KVAdapter (wrapping cometbft-db's dbm.DB)
// and pkg/ledger.LedgerStore's byte-prefix-key, JSON-blob, meta+counter
// idiom. Only cometbft-db is carried forward from the pack here — full
// CometBFT BFT consensus is dropped (see DESIGN.md): this agent has no
// multi-node consensus in scope, only an embedded KV engine.
package store

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KV is the minimal persistence interface the stable store and journal
// build on, matching the pack's ledger.KV shape.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// KVAdapter wraps a cometbft-db dbm.DB and exposes KV.
type KVAdapter struct {
	db dbm.DB
}

func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// OpenGoLevelDB opens (creating if absent) a goleveldb-backed database
// at dataDir/name.db, the default embedded engine for production use.
func OpenGoLevelDB(name, dataDir string) (*KVAdapter, error) {
	db, err := dbm.NewGoLevelDB(name, dataDir)
	if err != nil {
		return nil, err
	}
	return NewKVAdapter(db), nil
}

// OpenMemDB opens a process-local in-memory database, used for tests
// and the "memdb" store backend.
func OpenMemDB() *KVAdapter {
	return NewKVAdapter(dbm.NewMemDB())
}

func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v may be nil if the key is not present; callers treat nil as "not found".
	return v, nil
}

func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.SetSync(key, value)
}

func (a *KVAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
