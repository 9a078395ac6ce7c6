package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

// Store is the append-only measurement log. Rows are immutable once written;
// answers are bucketed averages over a lookback window.
type Store interface {
	Append(ctx context.Context, ts int64, snapshot model.Snapshot) error
	History(ctx context.Context, key string, since, bucket time.Duration, limit int) ([]model.Point, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

type SQLiteStore struct {
	log *slog.Logger
	db  *sql.DB
}

func NewSQLiteStore(log *slog.Logger, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Appends are serialized by the single writer; readers only need one
	// extra connection under WAL.
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	st := &SQLiteStore{
		log: log,
		db:  db,
	}

	if err := st.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return st, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS measurements (
			ts INTEGER NOT NULL,
			key TEXT NOT NULL,
			value REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_measurements_key_ts ON measurements(key, ts);
	`
	_, err := s.db.Exec(query)
	return err
}

// Append writes one row per snapshot key in a single transaction. A failed
// append is always surfaced to the caller; a lost write would corrupt every
// later history answer.
func (s *SQLiteStore) Append(ctx context.Context, ts int64, snapshot model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO measurements(ts, key, value) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range snapshot {
		if _, err := stmt.ExecContext(ctx, ts, key, value); err != nil {
			return fmt.Errorf("failed to insert measurement %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("measurements appended",
		slog.Int64("ts", ts),
		slog.Int("keys", len(snapshot)),
	)
	return nil
}

// History partitions the key's rows newer than now-since into fixed-width
// epoch-anchored buckets and averages each non-empty bucket, ascending.
// An unknown key yields an empty slice, not an error. A positive limit keeps
// only the most recent buckets.
func (s *SQLiteStore) History(ctx context.Context, key string, since, bucket time.Duration, limit int) ([]model.Point, error) {
	interval := int64(bucket.Seconds())
	if interval <= 0 {
		interval = 60
	}
	start := time.Now().Unix() - int64(since.Seconds())

	query := `
		SELECT
			(CAST(ts / ? AS INTEGER) * ?) AS bucket,
			AVG(value) AS avg_value
		FROM measurements
		WHERE key = ? AND ts >= ?
		GROUP BY bucket
		ORDER BY bucket
	`

	rows, err := s.db.QueryContext(ctx, query, interval, interval, key, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []model.Point
	for rows.Next() {
		var p model.Point
		if err := rows.Scan(&p.Ts, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&count)
	return count, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
