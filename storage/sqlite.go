package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"prism-board/domain"
)

// CacheKey is the fixed kv key the board blob lives under.
const CacheKey = "prism-board/board"

// SQLiteCache is the local tier backed by a single row in a kv table.
type SQLiteCache struct {
	db *sql.DB
}

func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (s *SQLiteCache) Load(ctx context.Context) (*domain.Board, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", CacheKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sqlite cache: %w", err)
	}
	b, _, err := domain.UnmarshalDocument([]byte(value))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteCache) Save(ctx context.Context, b *domain.Board) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", CacheKey, string(data))
	if err != nil {
		return fmt.Errorf("write sqlite cache: %w", err)
	}
	return nil
}

func (s *SQLiteCache) Close() error { return s.db.Close() }
