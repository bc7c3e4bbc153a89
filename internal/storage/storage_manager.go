/**
 * Storage Manager
 *
 * Opens the configured store backends, hands them to the dispatcher as a
 * writer set and closes every connection on shutdown.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/minoad/docuparse/internal/logging"
)

// ManagerConfig carries the connection settings for each backend
type ManagerConfig struct {
	Backends []string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	PostgresURL   string
	PostgresTable string

	RedisURL       string
	RedisKeyPrefix string
}

// StorageManager owns the open writers
type StorageManager struct {
	writers []Writer
	logger  *logging.Logger
}

// NewStorageManager opens every backend named in cfg.Backends, in order.
// Backends without a connection string are skipped with a warning. If any
// backend fails to open, the ones already open are closed.
func NewStorageManager(ctx context.Context, cfg ManagerConfig, logger *logging.Logger) (*StorageManager, error) {
	if logger == nil {
		logger = logging.NewLogger("storage")
	}
	sm := &StorageManager{logger: logger}

	for _, backend := range cfg.Backends {
		name := strings.ToLower(strings.TrimSpace(backend))
		if conn, needed := connectionString(name, cfg); needed && conn == "" {
			logger.Warn("Store disabled, no connection string", "backend", name)
			continue
		}

		w, err := openBackend(ctx, name, cfg)
		if err != nil {
			sm.Close()
			return nil, fmt.Errorf("failed to initialize %s store: %w", backend, err)
		}
		logger.Info("Store opened", "backend", w.Name())
		sm.writers = append(sm.writers, w)
	}

	if len(sm.writers) == 0 {
		return nil, fmt.Errorf("no store backends configured")
	}
	return sm, nil
}

// NewStorageManagerWithWriters wraps writers that are already open
func NewStorageManagerWithWriters(logger *logging.Logger, writers ...Writer) *StorageManager {
	if logger == nil {
		logger = logging.NewLogger("storage")
	}
	return &StorageManager{writers: writers, logger: logger}
}

// connectionString returns the URI a backend connects with and whether it
// needs one at all
func connectionString(backend string, cfg ManagerConfig) (string, bool) {
	switch backend {
	case "mongo":
		return cfg.MongoURI, true
	case "postgres":
		return cfg.PostgresURL, true
	case "redis":
		return cfg.RedisURL, true
	default:
		return "", false
	}
}

func openBackend(ctx context.Context, backend string, cfg ManagerConfig) (Writer, error) {
	switch backend {
	case "mongo":
		return NewMongoWriter(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "postgres":
		return NewPostgresWriter(ctx, cfg.PostgresURL, cfg.PostgresTable)
	case "redis":
		return NewRedisWriter(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	case "memory":
		return NewMemoryWriter(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Writers returns the open writers in configuration order
func (sm *StorageManager) Writers() []Writer {
	return sm.writers
}

// Reader returns the first writer that can also read records back
func (sm *StorageManager) Reader() (Reader, bool) {
	for _, w := range sm.writers {
		if r, ok := w.(Reader); ok {
			return r, true
		}
	}
	return nil, false
}

// poolStater is implemented by backends backed by a database/sql pool
type poolStater interface {
	Stats() sql.DBStats
}

// GetStats reports the record count of each readable backend and the
// connection pool of each SQL backend
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{}, len(sm.writers))
	for _, w := range sm.writers {
		if ps, ok := w.(poolStater); ok {
			pool := ps.Stats()
			stats[w.Name()+"_pool"] = map[string]interface{}{
				"open_connections": pool.OpenConnections,
				"in_use":           pool.InUse,
				"idle":             pool.Idle,
				"wait_count":       pool.WaitCount,
			}
		}

		r, ok := w.(Reader)
		if !ok {
			continue
		}
		n, err := r.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats[w.Name()] = n
	}
	return stats, nil
}

// Close closes all connections and reports every failure
func (sm *StorageManager) Close() error {
	var errs []error
	for _, w := range sm.writers {
		if err := w.Close(); err != nil {
			sm.logger.Error("Failed to close store", "backend", w.Name(), "error", err)
			errs = append(errs, fmt.Errorf("failed to close %s: %w", w.Name(), err))
		}
	}
	sm.writers = nil
	return errors.Join(errs...)
}
