package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keshon/datastore"
)

// The datastore only writes its file from the autosave ticker and from Close.
// FileStore commits each mutation by closing the open generation, which saves
// atomically, and reopening the file, so the ticker is effectively off.
const fileAutosaveInterval = 24 * time.Hour

var quietLogger = slog.New(slog.DiscardHandler)

// FileStore persists keys to a JSON document on disk. Set and Delete return
// only after the document on disk contains the change.
type FileStore struct {
	path string

	mu     sync.RWMutex
	ds     *datastore.DataStore
	cancel context.CancelFunc
	closed bool
}

// NewFileStore opens (or creates) the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = "lumi-state.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &FileStore{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// caller holds s.mu or owns s exclusively.
func (s *FileStore) open() error {
	ctx, cancel := context.WithCancel(context.Background())
	ds, err := datastore.New(ctx, s.path,
		datastore.WithSaveInterval(fileAutosaveInterval),
		datastore.WithLogger(quietLogger))
	if err != nil {
		cancel()
		return fmt.Errorf("open datastore %s: %w", s.path, err)
	}
	s.ds, s.cancel = ds, cancel
	return nil
}

// commit writes the current generation to disk and starts a new one from the
// file. On a failed save the unsaved change is dropped with the generation.
// caller holds s.mu.
func (s *FileStore) commit() error {
	s.cancel()
	saveErr := s.ds.Close()
	if err := s.open(); err != nil {
		s.closed = true
		return errors.Join(saveErr, err)
	}
	return saveErr
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}

	var value string
	ok, err := s.ds.Get(key, &value)
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.ds.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := s.commit(); err != nil {
		return fmt.Errorf("flush %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.ds.Delete(key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := s.commit(); err != nil {
		return fmt.Errorf("flush delete %s: %w", key, err)
	}
	return nil
}

// Close releases the file. Safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.cancel()
	return s.ds.Close()
}
