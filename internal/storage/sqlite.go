package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/codematch/internal/models"
)

// insertBatchSize bounds the rows written per transaction.
const insertBatchSize = 1000

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS codes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		category TEXT,
		chapter TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_codes_chapter ON codes(chapter);

	CREATE TABLE IF NOT EXISTS vocabulary_loads (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		count INTEGER NOT NULL,
		loaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// PutEntries upserts entries in transactions of insertBatchSize rows.
func (s *SQLiteStorage) PutEntries(ctx context.Context, entries []*models.CodeEntry) error {
	for start := 0; start < len(entries); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := s.putBatch(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) putBatch(ctx context.Context, entries []*models.CodeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO codes (code, description, category, chapter) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET
		   description = excluded.description,
		   category = excluded.category,
		   chapter = excluded.chapter`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Code, e.Description, e.Category, e.Chapter); err != nil {
			return fmt.Errorf("failed to store code %s: %w", e.Code, err)
		}
	}
	return tx.Commit()
}

// GetEntry returns the entry for code, or an error wrapping ErrNotFound.
func (s *SQLiteStorage) GetEntry(ctx context.Context, code string) (*models.CodeEntry, error) {
	var e models.CodeEntry
	var category, chapter sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT code, description, category, chapter FROM codes WHERE code = ?`, code,
	).Scan(&e.Code, &e.Description, &category, &chapter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.Category, e.Chapter = category.String, chapter.String
	return &e, nil
}

// Description resolves code to its description.
func (s *SQLiteStorage) Description(ctx context.Context, code string) (string, bool, error) {
	var desc string
	err := s.db.QueryRowContext(ctx, `SELECT description FROM codes WHERE code = ?`, code).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return desc, true, nil
}

// ListEntries returns entries in insertion order with offset and limit.
func (s *SQLiteStorage) ListEntries(ctx context.Context, offset, limit int) ([]*models.CodeEntry, error) {
	return s.queryEntries(ctx,
		`SELECT code, description, category, chapter FROM codes ORDER BY seq LIMIT ? OFFSET ?`,
		limit, offset)
}

// AllEntries returns every entry in insertion order.
func (s *SQLiteStorage) AllEntries(ctx context.Context) ([]*models.CodeEntry, error) {
	return s.queryEntries(ctx, `SELECT code, description, category, chapter FROM codes ORDER BY seq`)
}

func (s *SQLiteStorage) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*models.CodeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.CodeEntry
	for rows.Next() {
		var e models.CodeEntry
		var category, chapter sql.NullString
		if err := rows.Scan(&e.Code, &e.Description, &category, &chapter); err != nil {
			return nil, err
		}
		e.Category, e.Chapter = category.String, chapter.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteEntries removes codes in one transaction.
func (s *SQLiteStorage) DeleteEntries(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM codes WHERE code = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range codes {
		if _, err := stmt.ExecContext(ctx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountEntries returns the total number of codes.
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM codes`).Scan(&count)
	return count, err
}

// RecordLoad stores a vocabulary import record. LoadedAt defaults to now.
func (s *SQLiteStorage) RecordLoad(ctx context.Context, rec *models.LoadRecord) error {
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vocabulary_loads (id, source, count, loaded_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Count, rec.LoadedAt,
	)
	return err
}

// LastLoad returns the most recent import record, or an error wrapping ErrNotFound.
func (s *SQLiteStorage) LastLoad(ctx context.Context) (*models.LoadRecord, error) {
	var rec models.LoadRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, count, loaded_at FROM vocabulary_loads ORDER BY loaded_at DESC LIMIT 1`,
	).Scan(&rec.ID, &rec.Source, &rec.Count, &rec.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vocabulary load: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
