// Package kv provides the string key-value stores that device-local LUMI state
// is persisted through.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed         = errors.New("kv store is closed")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Store is the minimal persistence contract consumed by the mood manager.
// Keys are independent; there is no cross-key transaction.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open builds the store named by backend. path is ignored for memory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
