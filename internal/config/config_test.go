package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeoutSeconds != 300 {
		t.Errorf("RequestTimeoutSeconds = %d, want 300", cfg.Server.RequestTimeoutSeconds)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Storage.SQLite.Path != "chatrelay.db" {
		t.Errorf("SQLite.Path = %q", cfg.Storage.SQLite.Path)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  type: sqlite
  sqlite:
    path: /tmp/relay.db
providers:
  - name: primary
    kind: openai
    model: gpt-4o
    api_key: sk-inline
    active: true
    enabled: true
    capabilities: [search, reasoning]
  - name: claude
    kind: anthropic
    model: claude-sonnet-4
    api_key: sk-ant
    enabled: true
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/relay.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.Name != "primary" || p.Kind != "openai" || p.Model != "gpt-4o" || !p.Active {
		t.Errorf("provider[0] = %+v", p)
	}
	if len(p.Capabilities) != 2 || p.Capabilities[0] != "search" {
		t.Errorf("capabilities = %v", p.Capabilities)
	}
	if cfg.Providers[1].Active {
		t.Error("provider[1] should default to inactive")
	}
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("CHATRELAY_SERVER__PORT", "7070")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
}

func TestLoadFile_SubstitutesEnvVars(t *testing.T) {
	path := writeConfig(t, `
vault:
  master_key: ${TEST_RELAY_MASTER}
providers:
  - name: primary
    kind: openai
    api_key: ${TEST_RELAY_OPENAI_KEY}
`)
	t.Setenv("TEST_RELAY_MASTER", "super-secret")
	t.Setenv("TEST_RELAY_OPENAI_KEY", "sk-from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Vault.MasterKey != "super-secret" {
		t.Errorf("MasterKey = %q", cfg.Vault.MasterKey)
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.Providers[0].APIKey)
	}
}

func TestLoadFile_UnsetVarSubstitutesEmpty(t *testing.T) {
	path := writeConfig(t, "vault:\n  master_key: ${TEST_RELAY_DOES_NOT_EXIST}\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Vault.MasterKey != "" {
		t.Errorf("MasterKey = %q, want empty", cfg.Vault.MasterKey)
	}
}
