// Package config loads relay configuration from config.yaml and
// CHATRELAY_-prefixed environment variables, with env vars taking
// precedence.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Storage   StorageConfig    `koanf:"storage"`
	Vault     VaultConfig      `koanf:"vault"`
	Providers []ProviderConfig `koanf:"providers"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RequestTimeoutSeconds bounds non-streaming middleware work; streaming
	// responses are exempted by the handler.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type VaultConfig struct {
	// MasterKey seals provider credentials at rest. Usually supplied as
	// ${CHATRELAY_MASTER_KEY}; never logged.
	MasterKey string `koanf:"master_key"`
}

// ProviderConfig seeds one provider configuration into the store at startup.
type ProviderConfig struct {
	Name         string   `koanf:"name"`
	Kind         string   `koanf:"kind"` // openai, anthropic, google, replicate, custom
	Model        string   `koanf:"model"`
	APIKey       string   `koanf:"api_key"` // plaintext or ${VAR}; sealed before storage
	BaseURL      string   `koanf:"base_url"`
	Active       bool     `koanf:"active"`
	Enabled      bool     `koanf:"enabled"`
	Capabilities []string `koanf:"capabilities"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml when present, overlays environment variables, and
// applies defaults.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit config path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("CHATRELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHATRELAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("server.request_timeout_seconds") {
		k.Set("server.request_timeout_seconds", 300)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "chatrelay.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Vault.MasterKey = substituteEnvVars(cfg.Vault.MasterKey)
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
