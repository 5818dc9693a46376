// Package sqlite persists allocation history entries with the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/spectrum-optimizer/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS allocation_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT,
	kind TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	user_count INTEGER NOT NULL,
	allocation_vector TEXT NOT NULL,
	final_cost REAL NOT NULL,
	converged INTEGER NOT NULL,
	iterations INTEGER NOT NULL
);`

// Store is a history.Sink backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ history.Sink = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create allocation_history: %w", err)
	}
	return &Store{db: db}, nil
}

// Write implements history.Sink.
func (s *Store) Write(ctx context.Context, e history.Entry) error {
	vec := e.AllocationVector
	if vec == nil {
		vec = []float64{}
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode allocation vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allocation_history
			(id, run_id, kind, recorded_at, user_count, allocation_vector, final_cost, converged, iterations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Kind, e.RecordedAt.UnixNano(), e.UserCount, string(raw), e.FinalCost, e.Converged, e.Iterations,
	)
	if err != nil {
		return fmt.Errorf("insert history entry %s: %w", e.ID, err)
	}
	return nil
}

// List returns entries newest first. A positive limit keeps only the most
// recent limit entries.
func (s *Store) List(ctx context.Context, limit int) ([]history.Entry, error) {
	query := `SELECT id, run_id, kind, recorded_at, user_count, allocation_vector, final_cost, converged, iterations
		FROM allocation_history ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var (
			e        history.Entry
			runID    sql.NullString
			recorded int64
			raw      string
		)
		if err := rows.Scan(&e.ID, &runID, &e.Kind, &recorded, &e.UserCount, &raw, &e.FinalCost, &e.Converged, &e.Iterations); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.RunID = runID.String
		e.RecordedAt = time.Unix(0, recorded).UTC()
		if err := json.Unmarshal([]byte(raw), &e.AllocationVector); err != nil {
			return nil, fmt.Errorf("decode allocation vector of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
