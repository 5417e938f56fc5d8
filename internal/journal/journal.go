// Package journal is an explicit ledger of ingestion runs kept in sqlite next
// to the vector store. It records every run, every skipped batch and the last
// stored chunk, so a resume that relies on the store's point count can be
// cross-checked. It never changes where a run resumes.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one ingestion pass.
type Run struct {
	ID               int64     `json:"id"`
	Collection       string    `json:"collection"`
	Fingerprint      string    `json:"fingerprint"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Documents        int       `json:"documents"`
	Chunks           int       `json:"chunks"`
	ResumedFrom      int       `json:"resumed_from"`
	BatchesProcessed int       `json:"batches_processed"`
	BatchesSkipped   int       `json:"batches_skipped"`
	FinalCount       int       `json:"final_count"`
}

// Skip is a batch abandoned after exhausting its retries. Start and End are
// global chunk positions, End exclusive.
type Skip struct {
	RunID   int64
	Start   int
	End     int
	LastErr string
}

// Cursor is the last durably stored chunk of a collection.
type Cursor struct {
	Position int // number of chunks stored, i.e. the next position
	ChunkID  string
}

type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            collection TEXT NOT NULL,
            fingerprint TEXT NOT NULL,
            status TEXT NOT NULL,
            started_at TEXT NOT NULL,
            finished_at TEXT,
            documents INTEGER NOT NULL DEFAULT 0,
            chunks INTEGER NOT NULL DEFAULT 0,
            resumed_from INTEGER NOT NULL DEFAULT 0,
            batches_processed INTEGER NOT NULL DEFAULT 0,
            batches_skipped INTEGER NOT NULL DEFAULT 0,
            final_count INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_collection ON runs(collection, id);`,
		`CREATE TABLE IF NOT EXISTS skipped_batches (
            run_id INTEGER NOT NULL,
            start_pos INTEGER NOT NULL,
            end_pos INTEGER NOT NULL,
            last_error TEXT,
            FOREIGN KEY(run_id) REFERENCES runs(id)
        );`,
		`CREATE TABLE IF NOT EXISTS cursors (
            collection TEXT PRIMARY KEY,
            position INTEGER NOT NULL,
            chunk_id TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// StartRun inserts a running row and returns its id.
func (j *Journal) StartRun(ctx context.Context, collection, fingerprint string, documents, chunks, resumedFrom int) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs(collection, fingerprint, status, started_at, documents, chunks, resumed_from) VALUES(?,?,?,?,?,?,?)`,
		collection, fingerprint, "running", now(), documents, chunks, resumedFrom)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (j *Journal) FinishRun(ctx context.Context, id int64, status string, processed, skipped, finalCount int) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status=?, finished_at=?, batches_processed=?, batches_skipped=?, final_count=? WHERE id=?`,
		status, now(), processed, skipped, finalCount, id)
	return err
}

func (j *Journal) RecordSkip(ctx context.Context, s Skip) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO skipped_batches(run_id, start_pos, end_pos, last_error) VALUES(?,?,?,?)`,
		s.RunID, s.Start, s.End, s.LastErr)
	return err
}

func (j *Journal) Skips(ctx context.Context, runID int64) ([]Skip, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, start_pos, end_pos, COALESCE(last_error,'') FROM skipped_batches WHERE run_id=? ORDER BY start_pos`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Skip
	for rows.Next() {
		var s Skip
		if err := rows.Scan(&s.RunID, &s.Start, &s.End, &s.LastErr); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastRun returns the most recent run for collection with an id below before.
// Pass 0 to get the latest run overall.
func (j *Journal) LastRun(ctx context.Context, collection string, before int64) (Run, bool, error) {
	q := `SELECT id, collection, fingerprint, status, started_at, COALESCE(finished_at,''), documents, chunks,
            resumed_from, batches_processed, batches_skipped, final_count
          FROM runs WHERE collection=? AND (?=0 OR id<?) ORDER BY id DESC LIMIT 1`
	var (
		r                 Run
		started, finished string
	)
	err := j.db.QueryRowContext(ctx, q, collection, before, before).Scan(
		&r.ID, &r.Collection, &r.Fingerprint, &r.Status, &started, &finished, &r.Documents, &r.Chunks,
		&r.ResumedFrom, &r.BatchesProcessed, &r.BatchesSkipped, &r.FinalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	}
	return r, true, nil
}

func (j *Journal) SaveCursor(ctx context.Context, collection string, c Cursor) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO cursors(collection, position, chunk_id, updated_at) VALUES(?,?,?,?)
         ON CONFLICT(collection) DO UPDATE SET position=excluded.position, chunk_id=excluded.chunk_id, updated_at=excluded.updated_at`,
		collection, c.Position, c.ChunkID, now())
	return err
}

func (j *Journal) Cursor(ctx context.Context, collection string) (Cursor, bool, error) {
	var c Cursor
	err := j.db.QueryRowContext(ctx, `SELECT position, chunk_id FROM cursors WHERE collection=?`, collection).
		Scan(&c.Position, &c.ChunkID)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, false, nil
	}
	return c, err == nil, err
}

// Reset forgets the cursor of a collection. Run history is kept.
func (j *Journal) Reset(ctx context.Context, collection string) error {
	_, err := j.db.ExecContext(ctx, `DELETE FROM cursors WHERE collection=?`, collection)
	return err
}

func (j *Journal) Close() error { return j.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }
