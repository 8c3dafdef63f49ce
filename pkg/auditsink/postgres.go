package auditsink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // postgres driver, registered for database/sql

	"github.com/liquity/ir-agent/pkg/journal"
)

// PostgresSink appends every journal entry to an append-only audit_log
// table, grounded on the pack's pkg/database.Client connection-pooling
// idiom. When disabled it holds no *sql.DB and every Write is a no-op,
// following pkg/firestore/client.go's "Enabled bool" convention rather
// than leaving callers to check a feature flag themselves.
type PostgresSink struct {
	db      *sql.DB
	enabled bool
	logger  *log.Logger
}

// NewPostgresSink opens a connection pool against dsn when enabled is
// true. When enabled is false, dsn is ignored and the returned sink is a
// no-op; this lets cmd/agentd construct it unconditionally from
// Config.AuditSinkEnabled/AuditSinkDSN.
func NewPostgresSink(enabled bool, dsn string) (*PostgresSink, error) {
	s := &PostgresSink{enabled: enabled, logger: log.New(os.Stderr, "[AuditSink/Postgres] ", log.LstdFlags)}
	if !enabled {
		s.logger.Println("disabled, operating in no-op mode")
		return s, nil
	}
	if dsn == "" {
		return nil, fmt.Errorf("auditsink: postgres DSN required when enabled")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditsink: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditsink: pinging postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	s.logger.Println("connected")
	return s, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS agent_audit_log (
	id            TEXT PRIMARY KEY,
	recorded_at   TIMESTAMPTZ NOT NULL,
	strategy_id   BIGINT,
	entry_type    TEXT NOT NULL,
	note          TEXT,
	ok            BOOLEAN NOT NULL,
	err_kind      TEXT,
	r_curr        TEXT,
	r_new         TEXT,
	debt_in_front TEXT,
	target_amt    TEXT,
	tx_hash       TEXT
)`
	_, err := db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("auditsink: creating schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, e journal.Entry) error {
	if !s.enabled {
		return nil
	}
	const q = `
INSERT INTO agent_audit_log
	(id, recorded_at, strategy_id, entry_type, note, ok, err_kind, r_curr, r_new, debt_in_front, target_amt, tx_hash)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`

	var strategyID *uint32 = e.StrategyID
	_, err := s.db.ExecContext(ctx, q,
		e.ID, e.Timestamp, strategyID, string(e.Type), e.Note, e.OK, e.ErrKind,
		e.RCurr, e.RNew, e.DebtFront, e.TargetAmt, e.TxHash,
	)
	if err != nil {
		s.logger.Printf("write failed for entry %s: %v", e.ID, err)
		return fmt.Errorf("auditsink: writing entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
