package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"prism-board/domain"
)

// CacheFileName is the fixed name of the board document inside the cache directory.
const CacheFileName = "prism-board.json"

// FileCache is the local tier: one JSON document replaced atomically on every save.
type FileCache struct {
	mu   sync.Mutex
	dir  string
	path string
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir, path: filepath.Join(dir, CacheFileName)}
}

func (f *FileCache) Path() string { return f.path }

// Load returns nil, nil when nothing has been cached yet.
func (f *FileCache) Load(_ context.Context) (*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	b, _, err := domain.UnmarshalDocument(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (f *FileCache) Save(_ context.Context, b *domain.Board) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, CacheFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return syncDir(f.dir)
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
