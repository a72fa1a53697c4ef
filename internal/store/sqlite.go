// Package store keeps the sqlite-backed round index. The JSONL state log is
// the source of truth; this store gives the CLI an indexed history view and
// tracks which inbound emails were already turned into rounds.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			deal_id TEXT NOT NULL,
			round_number INTEGER NOT NULL,
			supplier_id TEXT,
			intent TEXT NOT NULL,
			uplift_pct REAL,
			top_trade TEXT,
			source TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			UNIQUE(deal_id, round_number)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_deal ON rounds(deal_id, round_number);`,
		`CREATE TABLE IF NOT EXISTS mail_ingestions (
			id TEXT PRIMARY KEY,
			account_key TEXT NOT NULL,
			uid INTEGER NOT NULL,
			message_id TEXT,
			deal_id TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			UNIQUE(account_key, uid)
		);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isSQLiteConstraint(err error) bool {
	if err == nil || err == sql.ErrNoRows {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique") || strings.Contains(text, "constraint")
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
