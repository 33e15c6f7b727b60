// Package store is a tiny JSON-file-backed record table. Each store owns one
// file holding a pretty-printed JSON array which is rewritten in full on
// every save.
//
// Read failures (missing file, unreadable file, corrupt JSON) degrade to an
// empty collection rather than an error, so a damaged file never takes the
// server down. Write failures are returned to the caller wrapped in
// common.ErrStorage.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"photoframe/internal/common"
)

type Store[T any] struct {
	path string
	log  *slog.Logger

	// mu serializes writers; Update holds it across load-modify-save.
	mu sync.Mutex
}

// Open returns a store backed by path, creating the parent directory and
// seeding an empty collection when the file does not exist yet.
func Open[T any](path string, log *slog.Logger) (*Store[T], error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store[T]{path: path, log: log.With("store", filepath.Base(path))}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, common.Storage("create data dir", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.Save(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store[T]) Path() string {
	return s.path
}

// Load returns every persisted record in stored order.
func (s *Store[T]) Load() []T {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("read failed, treating as empty", "err", err)
		}
		return []T{}
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("corrupt file, treating as empty", "err", err)
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// Save atomically replaces the file with records.
func (s *Store[T]) Save(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(records)
}

// Update runs fn over the current records under the store lock and saves
// what it returns. If fn fails nothing is written.
func (s *Store[T]) Update(fn func(records []T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.Load())
	if err != nil {
		return err
	}
	return s.write(next)
}

func (s *Store[T]) write(records []T) error {
	if records == nil {
		records = []T{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return common.Storage("encode", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return common.Storage("write", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return common.Storage("rename", err)
	}
	return nil
}
