// Package archive is the durable record of terminal sessions: one row per
// session with the final state label, the latest result, and the full
// append-only history.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/session"
)

// Schema for the sessions table. Call Store.Init() or apply manually.
// Placeholders use the $n form, which both SQLite and Postgres accept.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	state TEXT NOT NULL,
	contract_type TEXT,
	abort_reason TEXT,
	iterations INTEGER NOT NULL,
	needs_attention INTEGER NOT NULL,
	render_pending INTEGER NOT NULL,
	result_json TEXT,
	history_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_document ON sessions(document_id);
`

// Store persists session snapshots via database/sql.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects the archive store. The sqlite driver serves single-node
// deployments; postgres goes through the pgx stdlib wrapper.
func Open(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("archive.connecting", "driver", cfg.Driver)

	var db *sql.DB
	switch cfg.Driver {
	case "postgres":
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse archive dsn: %w", err)
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "contracts-desk"
		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("archive.connect_failed", "error", err)
			return nil, err
		}
		db = stdlib.OpenDBFromPool(pool)
	case "sqlite":
		var err error
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("archive.connect_failed", "error", err)
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", cfg.Driver)
	}

	logger.Info("archive.connected", "driver", cfg.Driver)
	return &Store{db: db, log: logger}, nil
}

// NewStore wraps an existing connection (tests).
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

// Init creates the sessions table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.log.Info("archive.closing")
	return s.db.Close()
}

// HealthCheck pings the store, catching DSN issues early.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.db.PingContext(ctx)
}

// Save upserts one snapshot. History writes are logically append-only: the
// stored history only ever grows, because snapshots carry the full list.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	resultJSON, err := json.Marshal(snap.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	historyJSON, err := json.Marshal(snap.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (
	session_id, document_id, state, contract_type, abort_reason,
	iterations, needs_attention, render_pending,
	result_json, history_json, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT(session_id) DO UPDATE SET
	state = $3,
	contract_type = $4,
	abort_reason = $5,
	iterations = $6,
	needs_attention = $7,
	render_pending = $8,
	result_json = $9,
	history_json = $10,
	updated_at = $12`,
		snap.SessionID, snap.DocumentID, string(snap.State), string(snap.ContractType),
		string(snap.AbortReason), snap.Iterations, boolInt(snap.NeedsAttention),
		boolInt(snap.RenderPending), string(resultJSON), string(historyJSON),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.log.Error("archive.save_failed", "session_id", snap.SessionID, "error", err)
		return err
	}
	s.log.Info("archive.saved", "session_id", snap.SessionID, "state", snap.State)
	return nil
}

// Get loads one archived snapshot.
func (s *Store) Get(ctx context.Context, sessionID string) (session.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, document_id, state, contract_type, abort_reason,
	iterations, needs_attention, render_pending,
	result_json, history_json, created_at, updated_at
FROM sessions WHERE session_id = $1`, sessionID)

	var snap session.Snapshot
	var state, ct, reason, resultJSON, historyJSON, createdAt, updatedAt string
	var needsAttention, renderPending int
	err := row.Scan(&snap.SessionID, &snap.DocumentID, &state, &ct, &reason,
		&snap.Iterations, &needsAttention, &renderPending,
		&resultJSON, &historyJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return session.Snapshot{}, fmt.Errorf("%w: archived session %s", common.ErrNotFound, sessionID)
	}
	if err != nil {
		return session.Snapshot{}, err
	}

	snap.State = constants.SessionState(state)
	snap.ContractType = constants.ContractType(ct)
	snap.AbortReason = constants.AbortReason(reason)
	snap.NeedsAttention = needsAttention != 0
	snap.RenderPending = renderPending != 0
	if resultJSON != "" && resultJSON != "null" {
		if err := json.Unmarshal([]byte(resultJSON), &snap.Result); err != nil {
			return session.Snapshot{}, fmt.Errorf("decode result: %w", err)
		}
	}
	if historyJSON != "" && historyJSON != "null" {
		if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
			return session.Snapshot{}, fmt.Errorf("decode history: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		snap.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		snap.UpdatedAt = t
	}
	return snap, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
