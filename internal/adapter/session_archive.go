package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/mouse-blink/storyteller/internal/domain"
	m "github.com/mouse-blink/storyteller/internal/model"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER NOT NULL,
	total_calls   INTEGER NOT NULL,
	total_effects INTEGER NOT NULL,
	snapshot      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// SessionArchive stores end-of-session snapshots of the trackers.
type SessionArchive interface {
	Save(ctx context.Context, snapshot m.SessionSnapshot) error
	List(ctx context.Context) ([]m.SessionRecord, error)
	Load(ctx context.Context, id string) (m.SessionSnapshot, error)
	Close() error
}

type sqliteArchive struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
}

// OpenSessionArchive opens or creates the SQLite archive at path.
func OpenSessionArchive(path string, logger *slog.Logger) (SessionArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()

			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := conn.Exec(sessionSchema); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	logger.Debug("session archive opened", "path", path)

	return &sqliteArchive{conn: conn, logger: logger, path: path}, nil
}

// Save inserts or replaces the snapshot of one session.
func (a *sqliteArchive) Save(ctx context.Context, snapshot m.SessionSnapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return a.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (id, name, started_at, ended_at, total_calls, total_effects, snapshot)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snapshot.Session.ID,
			snapshot.Session.Name,
			snapshot.Session.StartedAt.UnixNano(),
			snapshot.EndedAt.UnixNano(),
			len(snapshot.CallGraph.AllCalls),
			snapshot.SideEffects.TotalEffects,
			blob,
		)
		if err != nil {
			return fmt.Errorf("insert session %s: %w", snapshot.Session.ID, err)
		}

		return nil
	})
}

// List returns archived sessions, newest first.
func (a *sqliteArchive) List(ctx context.Context) ([]m.SessionRecord, error) {
	rows, err := a.conn.QueryContext(ctx,
		`SELECT id, name, started_at, ended_at, total_calls, total_effects
		 FROM sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := []m.SessionRecord{}

	for rows.Next() {
		var (
			rec              m.SessionRecord
			started, endedAt int64
		)

		if err := rows.Scan(&rec.ID, &rec.Name, &started, &endedAt, &rec.TotalCalls, &rec.TotalEffects); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		rec.StartedAt = time.Unix(0, started)
		rec.EndedAt = time.Unix(0, endedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return records, nil
}

// Load returns the full snapshot of one session.
func (a *sqliteArchive) Load(ctx context.Context, id string) (m.SessionSnapshot, error) {
	var blob []byte

	err := a.conn.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return m.SessionSnapshot{}, fmt.Errorf("%w: session %s", domain.ErrResultNotFound, id)
	}

	if err != nil {
		return m.SessionSnapshot{}, fmt.Errorf("load session %s: %w", id, err)
	}

	var snapshot m.SessionSnapshot
	if err := json.Unmarshal(blob, &snapshot); err != nil {
		return m.SessionSnapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}

	return snapshot, nil
}

func (a *sqliteArchive) Close() error {
	if a.conn == nil {
		return nil
	}

	return a.conn.Close()
}

func (a *sqliteArchive) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Error("rollback failed", "error", err, "rollback_error", rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
