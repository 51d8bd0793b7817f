// Package database persists search and transfer history in SQLite. The
// schema is managed through embedded goose migrations so a fresh database
// file is usable immediately and upgrades apply on open.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"tunnelarr/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps the SQLite connection. SQLite has a single writer, so the
// pool is capped at one connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database under dir and applies any
// pending migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dbPath := filepath.Join(dir, "tunnelarr.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SearchRecord is one row of search history.
type SearchRecord struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	SearchedAt  time.Time `json:"searchedAt"`
}

// RecordSearch appends one search to the history.
func (s *Store) RecordSearch(ctx context.Context, query string, resultCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (query, result_count, searched_at) VALUES (?, ?, ?)`,
		query, resultCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// RecentSearches returns the most recent searches, newest first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, result_count, searched_at FROM searches ORDER BY searched_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		if err := rows.Scan(&r.ID, &r.Query, &r.ResultCount, &r.SearchedAt); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordTransfer upserts one transfer record. The transfer manager calls
// this on every state transition, so the row always reflects the latest
// known state.
func (s *Store) RecordTransfer(t models.Transfer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (id, client, handle_id, name, locator, save_path, state, progress, ratio, error, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			handle_id = excluded.handle_id,
			name = excluded.name,
			state = excluded.state,
			progress = excluded.progress,
			ratio = excluded.ratio,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		t.ID, t.ClientName, t.HandleID, t.Name, t.Locator, t.SavePath,
		string(t.State), t.Progress, t.Ratio, t.Error, t.AddedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

// ListTransfers returns stored transfer history, newest first. An empty
// state filter returns everything.
func (s *Store) ListTransfers(ctx context.Context, state string, limit int) ([]models.Transfer, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, client, handle_id, name, locator, save_path, state, progress, ratio, error, added_at, updated_at
		FROM transfers`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY added_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var t models.Transfer
		var stateStr string
		if err := rows.Scan(&t.ID, &t.ClientName, &t.HandleID, &t.Name, &t.Locator, &t.SavePath,
			&stateStr, &t.Progress, &t.Ratio, &t.Error, &t.AddedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		t.State = models.TransferState(stateStr)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
