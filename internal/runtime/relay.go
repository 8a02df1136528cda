// Package runtime assembles and manages the lifecycle of a complete relay:
// config, storage, credential vault, provider adapters, normalizer, and the
// HTTP server. It backs both cmd/chatrelay and the embeddable pkg/chatrelay
// facade.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erenbertr/chatrelay/internal/adapter"
	anthropicadapter "github.com/erenbertr/chatrelay/internal/adapter/anthropic"
	googleadapter "github.com/erenbertr/chatrelay/internal/adapter/google"
	openaiadapter "github.com/erenbertr/chatrelay/internal/adapter/openai"
	replicateadapter "github.com/erenbertr/chatrelay/internal/adapter/replicate"
	"github.com/erenbertr/chatrelay/internal/config"
	"github.com/erenbertr/chatrelay/internal/conversation"
	"github.com/erenbertr/chatrelay/internal/corpus"
	"github.com/erenbertr/chatrelay/internal/credentials"
	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/normalizer"
	"github.com/erenbertr/chatrelay/internal/server"
	"github.com/erenbertr/chatrelay/internal/storage"
	"github.com/erenbertr/chatrelay/internal/storage/memory"
	"github.com/erenbertr/chatrelay/internal/storage/sqlite"
	"github.com/erenbertr/chatrelay/internal/tokens"
)

// Relay wires every component of the service and owns their lifecycle.
// It can be embedded in a larger application or run standalone.
type Relay struct {
	cfg        *config.Config
	configPath string
	store      storage.RecordStore
	closeStore func()
	logger     *slog.Logger

	normalizer *normalizer.Normalizer
	srv        *server.Server
}

// New builds a Relay from the given options. Config defaults to
// ./config.yaml plus environment overrides, storage to what the config
// names. Construction seeds configured providers into the store.
func New(opts ...Option) (*Relay, error) {
	rl := &Relay{
		configPath: "config.yaml",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if rl.cfg == nil {
		cfg, err := config.LoadFile(rl.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		rl.cfg = cfg
	}
	if rl.store == nil {
		store, closeStore, err := openStore(rl.cfg.Storage, rl.logger)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		rl.store = store
		rl.closeStore = closeStore
	}
	if rl.closeStore == nil {
		rl.closeStore = func() {}
	}

	vault, err := credentials.NewVault(rl.store, rl.cfg.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if err := credentials.SeedProviders(context.Background(), rl.store, vault, seedProviders(rl.cfg.Providers), rl.logger); err != nil {
		return nil, fmt.Errorf("seed providers: %w", err)
	}

	registry := adapter.NewRegistry()
	registry.Register(openaiadapter.New(domain.ProviderOpenAI, rl.logger))
	registry.RegisterAs(domain.ProviderCustom, openaiadapter.New(domain.ProviderCustom, rl.logger))
	registry.Register(anthropicadapter.New(rl.logger))
	registry.Register(googleadapter.New(rl.logger))
	registry.Register(replicateadapter.New(rl.logger))

	counter := tokens.NewRegistry(tokens.NewOpenAICounter())
	rl.normalizer = normalizer.New(
		credentials.NewResolver(rl.store, vault),
		conversation.NewBuilder(rl.store, counter, rl.logger),
		registry,
		corpus.NewStoreProvider(rl.store),
		rl.logger,
	)

	chat := server.NewChatHandler(rl.normalizer, server.NewTurns(rl.store, rl.logger), rl.logger)
	rl.srv = server.New(rl.cfg.Server.Port, time.Duration(rl.cfg.Server.RequestTimeoutSeconds)*time.Second, chat, rl.logger)

	return rl, nil
}

// Config returns the effective configuration.
func (rl *Relay) Config() *config.Config { return rl.cfg }

// Normalizer exposes the streaming pipeline for embedders that bring their
// own transport.
func (rl *Relay) Normalizer() *normalizer.Normalizer { return rl.normalizer }

// Server exposes the configured HTTP server, including its router.
func (rl *Relay) Server() *server.Server { return rl.srv }

// Start runs the HTTP server and blocks until it stops.
func (rl *Relay) Start() error {
	return rl.srv.Start()
}

// Shutdown drains in-flight requests and closes the store.
func (rl *Relay) Shutdown(ctx context.Context) error {
	err := rl.srv.Shutdown(ctx)
	rl.closeStore()
	return err
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (storage.RecordStore, func(), error) {
	switch cfg.Type {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("failed to close store", slog.String("error", err.Error()))
			}
		}, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func seedProviders(configured []config.ProviderConfig) []credentials.SeedProvider {
	seeds := make([]credentials.SeedProvider, 0, len(configured))
	for _, p := range configured {
		seeds = append(seeds, credentials.SeedProvider{
			Name:         p.Name,
			Kind:         p.Kind,
			Model:        p.Model,
			APIKey:       p.APIKey,
			Endpoint:     p.BaseURL,
			Active:       p.Active,
			Enabled:      p.Enabled,
			Capabilities: p.Capabilities,
		})
	}
	return seeds
}
