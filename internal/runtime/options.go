package runtime

import (
	"fmt"
	"log/slog"

	"github.com/erenbertr/chatrelay/internal/config"
	"github.com/erenbertr/chatrelay/internal/storage"
	"github.com/erenbertr/chatrelay/internal/storage/memory"
	"github.com/erenbertr/chatrelay/internal/storage/sqlite"
)

// Option configures a Relay during construction.
type Option func(*Relay) error

// WithConfigFile loads configuration from the given path instead of the
// default ./config.yaml. Environment overrides still apply.
func WithConfigFile(path string) Option {
	return func(rl *Relay) error {
		rl.configPath = path
		return nil
	}
}

// WithConfig supplies a fully built configuration, bypassing file and
// environment loading.
func WithConfig(cfg *config.Config) Option {
	return func(rl *Relay) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		rl.cfg = cfg
		return nil
	}
}

// WithLogger replaces slog.Default for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(rl *Relay) error {
		rl.logger = logger
		return nil
	}
}

// WithMemoryStore uses the in-process store regardless of config.
func WithMemoryStore() Option {
	return func(rl *Relay) error {
		rl.store = memory.New()
		return nil
	}
}

// WithSQLite opens a SQLite store at the given path regardless of config.
func WithSQLite(path string) Option {
	return func(rl *Relay) error {
		s, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		rl.store = s
		rl.closeStore = func() {
			if err := s.Close(); err != nil {
				rl.logger.Error("failed to close store", slog.String("error", err.Error()))
			}
		}
		return nil
	}
}

// WithStore supplies a caller-owned record store. The caller keeps
// responsibility for closing it.
func WithStore(store storage.RecordStore) Option {
	return func(rl *Relay) error {
		if store == nil {
			return fmt.Errorf("store must not be nil")
		}
		rl.store = store
		return nil
	}
}
