// Package history keeps an audit trail of analysis requests in a DuckDB
// file, so operators can see which inputs took the structural path and which
// fell back to the model.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
)

// Record is one analyzed file.
type Record struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Source      string    `json:"source"` // "structural" or "model"
	Extractor   string    `json:"extractor,omitempty"`
	DiagramType string    `json:"diagramType"`
	StepCount   int       `json:"stepCount"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is a DuckDB-backed append-only record of analyses.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore opens (or creates) the history database at dbPath.
func NewStore(dbPath string, log zerolog.Logger) (*Store, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analyses (
			id           VARCHAR PRIMARY KEY,
			filename     VARCHAR NOT NULL,
			source       VARCHAR NOT NULL,
			extractor    VARCHAR,
			diagram_type VARCHAR,
			step_count   INTEGER NOT NULL,
			duration_ms  BIGINT NOT NULL,
			created_at   TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create analyses table: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}, nil
}

// Add appends one record.
func (s *Store) Add(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, filename, source, extractor, diagram_type, step_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Filename, r.Source, r.Extractor, r.DiagramType, r.StepCount, r.DurationMs, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, source, COALESCE(extractor, ''), COALESCE(diagram_type, ''), step_count, duration_ms, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Filename, &r.Source, &r.Extractor, &r.DiagramType, &r.StepCount, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
