// Package journal implements the Journal (C3): an append-only,
// per-strategy / per-recharge event log with bounded ring retention,
// grounded on the retrieval pack's pkg/ledger.LedgerStore idiom (JSON
// blobs behind byte-prefixed keys, a meta record tracking a monotone
// counter). Where the pack persists its ring only at upgrade
// boundaries — a concept with no equivalent in an ordinary Go process —
// this module persists on every append, trading a little write
// amplification for not needing a pre-upgrade/post-upgrade hook pair
// that would never fire.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liquity/ir-agent/pkg/store"
)

// EntryType tags the kind of event recorded.
type EntryType string

const (
	TypeInfo                     EntryType = "Info"
	TypeRateAdjustment           EntryType = "RateAdjustment"
	TypeRecharge                 EntryType = "Recharge"
	TypeProviderReputationChange EntryType = "ProviderReputationChange"
	TypeExecutionResult          EntryType = "ExecutionResult"
)

// Entry is one timestamped journal record (§3).
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	StrategyID *uint32   `json:"strategy_id,omitempty"`
	Type       EntryType `json:"type"`
	Note       string    `json:"note"`
	OK         bool      `json:"ok"`
	ErrKind    string    `json:"err_kind,omitempty"`

	// Optional structured payload for RateAdjustment entries.
	RCurr     string `json:"r_curr,omitempty"`
	RNew      string `json:"r_new,omitempty"`
	DebtFront string `json:"debt_in_front,omitempty"`
	TargetAmt string `json:"target_amt,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
}

const journalKey = "journal/ring"

// Journal is an append-only ring of entries bounded to ringSize,
// persisted as one blob behind a single key — mirroring the pack's
// "meta + counter" idiom, with the ring itself playing the role of the
// counter's backing collection.
type Journal struct {
	mu       sync.Mutex
	kv       store.KV
	ringSize int
	entries  []Entry

	subMu sync.Mutex
	subs  map[chan Entry]struct{}
}

func New(kv store.KV, ringSize int) (*Journal, error) {
	if ringSize <= 0 {
		ringSize = 1000
	}
	j := &Journal{kv: kv, ringSize: ringSize, subs: make(map[chan Entry]struct{})}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	raw, err := j.kv.Get([]byte(journalKey))
	if err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}
	if raw == nil {
		j.entries = nil
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decoding journal: %w", err)
	}
	j.entries = entries
	return nil
}

func (j *Journal) persistLocked() error {
	raw, err := json.Marshal(j.entries)
	if err != nil {
		return fmt.Errorf("encoding journal: %w", err)
	}
	return j.kv.Set([]byte(journalKey), raw)
}

// Append adds an entry, dropping the oldest once the ring exceeds
// ringSize entries (oldest-drop-first retention per §4.6).
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	j.entries = append(j.entries, e)
	if len(j.entries) > j.ringSize {
		j.entries = j.entries[len(j.entries)-j.ringSize:]
	}
	err := j.persistLocked()
	j.broadcast(e)
	return err
}

// Subscribe registers a channel that receives every entry appended from
// this point on, for the live /ws/logs stream (SPEC_FULL.md §11). The
// channel is buffered so one slow reader can't block Append; a reader
// that falls behind the buffer simply misses entries rather than
// stalling the journal. Callers must call Unsubscribe when done.
func (j *Journal) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	j.subMu.Lock()
	j.subs[ch] = struct{}{}
	j.subMu.Unlock()
	return ch
}

func (j *Journal) Unsubscribe(ch chan Entry) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	if _, ok := j.subs[ch]; ok {
		delete(j.subs, ch)
		close(ch)
	}
}

func (j *Journal) broadcast(e Entry) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (j *Journal) AppendInfo(strategyID *uint32, note string) error {
	return j.Append(Entry{StrategyID: strategyID, Type: TypeInfo, Note: note, OK: true})
}

func (j *Journal) AppendExecutionResult(strategyID uint32, ok bool, errKind, note string) error {
	return j.Append(Entry{StrategyID: &strategyID, Type: TypeExecutionResult, Note: note, OK: ok, ErrKind: errKind})
}

func (j *Journal) AppendRateAdjustment(strategyID uint32, rCurr, rNew, debtFront, targetAmt, txHash string) error {
	return j.Append(Entry{
		StrategyID: &strategyID,
		Type:       TypeRateAdjustment,
		OK:         true,
		RCurr:      rCurr,
		RNew:       rNew,
		DebtFront:  debtFront,
		TargetAmt:  targetAmt,
		TxHash:     txHash,
	})
}

func (j *Journal) AppendRecharge(strategyID *uint32, note string, ok bool) error {
	return j.Append(Entry{StrategyID: strategyID, Type: TypeRecharge, Note: note, OK: ok})
}

func (j *Journal) AppendProviderReputationChange(note string) error {
	return j.Append(Entry{Type: TypeProviderReputationChange, Note: note, OK: true})
}

const pageSize = 50

// GetLogs returns a page of all entries starting at offset, newest
// first, backing get_logs(offset).
func (j *Journal) GetLogs(offset uint64) []Entry {
	return j.page(offset, func(Entry) bool { return true })
}

// GetRechargeLogs backs get_recharge_logs(offset).
func (j *Journal) GetRechargeLogs(offset uint64) []Entry {
	return j.page(offset, func(e Entry) bool { return e.Type == TypeRecharge })
}

// GetStrategyLogs backs get_strategy_logs(offset, key).
func (j *Journal) GetStrategyLogs(offset uint64, key uint32) []Entry {
	return j.page(offset, func(e Entry) bool { return e.StrategyID != nil && *e.StrategyID == key })
}

// EntriesSince returns every entry with Timestamp >= since, oldest
// first, regardless of type — used by the halting supervisor's rolling
// success-ratio and adjustment-frequency windows, which need the whole
// window rather than a fixed-size page.
func (j *Journal) EntriesSince(since time.Time) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Entry
	for _, e := range j.entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) page(offset uint64, match func(Entry) bool) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var filtered []Entry
	for i := len(j.entries) - 1; i >= 0; i-- {
		if match(j.entries[i]) {
			filtered = append(filtered, j.entries[i])
		}
	}

	if offset >= uint64(len(filtered)) {
		return nil
	}
	end := offset + pageSize
	if end > uint64(len(filtered)) {
		end = uint64(len(filtered))
	}
	return filtered[offset:end]
}
