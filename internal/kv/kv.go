// Package kv abstracts the key-value blob store shared by the refresh process
// and widget consumers. Every backend replaces a key's value in one operation,
// so a reader sees either the previous or the new blob, never a mix.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"currex/internal/config"
)

// ErrNotFound is returned by Get when a key was never written.
var ErrNotFound = errors.New("kv: key not found")

// Store is a shared key-value blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// OpenOptions tune Open.
type OpenOptions struct {
	// ReadOnly opens backends that support it without taking the writer lock.
	ReadOnly bool
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.WidgetConfig, opts OpenOptions, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "kv").Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Path)
	case "badger":
		return OpenBadger(cfg.Path, opts.ReadOnly)
	case "sqlite":
		return OpenSQLite(ctx, filepath.Join(cfg.Path, "widget.db"))
	case "redis":
		return OpenRedis(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("kv: invalid key %q", key)
	}
	return nil
}
