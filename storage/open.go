package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// Cache is a local tier as returned by OpenCache.
type Cache interface {
	Load(ctx context.Context) (*domain.Board, error)
	Save(ctx context.Context, b *domain.Board) error
	Close() error
}

// Remote is a remote tier as returned by OpenRemote.
type Remote interface {
	Subscribe(ctx context.Context) (<-chan Snapshot, error)
	Write(ctx context.Context, b *domain.Board) error
	Close() error
}

type CacheConfig struct {
	Backend string
	Dir     string
}

type RemoteConfig struct {
	Backend                string
	RedisURL               string
	TablesConnectionString string
	TablesTable            string
	PostgresURL            string
	PollInterval           time.Duration
}

// OpenCache builds the configured local tier. "file" is the default.
func OpenCache(ctx context.Context, cfg CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "file":
		return fileCloser{NewFileCache(cfg.Dir)}, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		c, err := OpenSQLiteCache(ctx, filepath.Join(cfg.Dir, "prism-board.db"))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

type fileCloser struct{ *FileCache }

func (fileCloser) Close() error { return nil }

// OpenRemote builds the configured remote tier. An empty backend yields
// ErrRemoteNotConfigured.
func OpenRemote(ctx context.Context, cfg RemoteConfig, boardID string, logger *log.Logger) (Remote, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, ErrRemoteNotConfigured
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis backend: %w", ErrRemoteNotConfigured)
		}
		opts, err := ParseRedisOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		r := NewRedisRemote(redis.NewClient(opts), boardID, logger)
		r.ownsClient = true
		if err := r.client.Ping(ctx).Err(); err != nil {
			_ = r.Close()
			return nil, remoteErr("redis", "ping", err)
		}
		return r, nil
	case "tables":
		if cfg.TablesConnectionString == "" {
			return nil, fmt.Errorf("tables backend: %w", ErrRemoteNotConfigured)
		}
		table := cfg.TablesTable
		if table == "" {
			table = "boards"
		}
		t, err := NewTablesRemote(ctx, cfg.TablesConnectionString, table, boardID, cfg.PollInterval, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend: %w", ErrRemoteNotConfigured)
		}
		p, err := NewPostgresRemote(ctx, cfg.PostgresURL, boardID, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
}
