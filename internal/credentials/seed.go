package credentials

import (
	"context"
	"errors"
	"log/slog"

	"github.com/erenbertr/chatrelay/internal/storage"
)

// SeedProvider is one provider configuration to install at startup.
type SeedProvider struct {
	Name         string
	Kind         string
	Model        string
	APIKey       string
	Endpoint     string
	Active       bool
	Enabled      bool
	Capabilities []string
}

// SeedProviders installs configured providers into the store, sealing each
// API key in the vault. Providers already present by name are left alone so
// restarts do not churn credentials.
func SeedProviders(ctx context.Context, store storage.RecordStore, vault *Vault, providers []SeedProvider, logger *slog.Logger) error {
	for _, p := range providers {
		if p.APIKey == "" {
			logger.Warn("skipping provider with no API key", slog.String("name", p.Name))
			continue
		}

		_, err := store.FindOne(ctx, storage.CollectionProviders, storage.Query{
			Where: map[string]any{"name": p.Name},
		})
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		keyID, err := vault.Store(ctx, p.APIKey)
		if err != nil {
			return err
		}

		caps := make([]any, len(p.Capabilities))
		for i, c := range p.Capabilities {
			caps[i] = c
		}

		if _, err := store.Insert(ctx, storage.CollectionProviders, storage.Record{
			"name":         p.Name,
			"kind":         p.Kind,
			"model":        p.Model,
			"key_id":       keyID,
			"endpoint":     p.Endpoint,
			"active":       p.Active,
			"enabled":      p.Enabled,
			"capabilities": caps,
		}); err != nil {
			return err
		}
		logger.Info("seeded provider configuration",
			slog.String("name", p.Name),
			slog.String("kind", p.Kind),
			slog.String("model", p.Model))
	}
	return nil
}
