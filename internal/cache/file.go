package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"property-hub/internal/models"
)

// FileStore keeps one JSON file per entry in a directory. Writes go to a
// temp file that is renamed over the target, so readers see either the old
// or the new entry.
type FileStore struct {
	dir  string
	opts Options
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, opts Options) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir, opts: opts.withDefaults()}, nil
}

func (s *FileStore) path(addr models.Address, source models.SourceID) string {
	sum := sha1.Sum([]byte(string(source) + "#" + addr.Key()))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *FileStore) read(path string) (*models.CacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e models.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache file %s: %w", filepath.Base(path), err)
	}
	return &e, nil
}

func (s *FileStore) Get(_ context.Context, addr models.Address, source models.SourceID) (*models.CacheEntry, bool) {
	e, err := s.read(s.path(addr, source))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.opts.Logger.Warn("Cache read failed, treating as miss", "source", source, "address", addr.Key(), "error", err)
		}
		return nil, false
	}
	if e.Expired(s.opts.Now(), s.opts.TTL) {
		return nil, false
	}
	return e, true
}

func (s *FileStore) Set(_ context.Context, addr models.Address, source models.SourceID, data models.RawResult) error {
	payload, err := json.Marshal(models.CacheEntry{
		Data:      data,
		Timestamp: s.opts.Now(),
		Address:   addr,
		Source:    source,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(addr, source)); err != nil {
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Has(ctx context.Context, addr models.Address, source models.SourceID) bool {
	_, ok := s.Get(ctx, addr, source)
	return ok
}

func (s *FileStore) Delete(_ context.Context, addr models.Address, source models.SourceID) error {
	err := os.Remove(s.path(addr, source))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) entries() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	var paths []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, de.Name()))
	}
	return paths, nil
}

func (s *FileStore) Clear(context.Context) error {
	paths, err := s.entries()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// ClearExpired also removes files that cannot be decoded
func (s *FileStore) ClearExpired(context.Context) (int, error) {
	paths, err := s.entries()
	if err != nil {
		return 0, err
	}

	now := s.opts.Now()
	removed := 0
	for _, p := range paths {
		e, err := s.read(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err == nil && !e.Expired(now, s.opts.TTL) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", filepath.Base(p), err)
		}
		removed++
	}
	return removed, nil
}
