/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.HTTP.Enabled {
		t.Error("HTTP should be disabled by default")
	}
	if cfg.HTTP.Address != ":8080" {
		t.Errorf("unexpected default address: %s", cfg.HTTP.Address)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("unexpected default driver: %s", cfg.Database.Driver)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("unexpected default llm provider: %s", cfg.LLM.Provider)
	}
	if cfg.Query.MaxRows != 500 {
		t.Errorf("unexpected default max rows: %d", cfg.Query.MaxRows)
	}
	if cfg.Query.TimeoutSeconds != 15 {
		t.Errorf("unexpected default query timeout: %d", cfg.Query.TimeoutSeconds)
	}
	if !cfg.Schema.CacheEnabled {
		t.Error("schema cache should be enabled by default")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  path: /data/shop.db
llm:
  provider: ollama
  model: llama3
query:
  max_rows: 100
  timeout_seconds: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true, ConfigFile: path})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Database.Path != "/data/shop.db" {
		t.Errorf("database path not loaded: %s", cfg.Database.Path)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("llm provider not loaded: %s", cfg.LLM.Provider)
	}
	if cfg.Query.MaxRows != 100 {
		t.Errorf("max rows not loaded: %d", cfg.Query.MaxRows)
	}
	if cfg.Query.TimeoutSeconds != 5 {
		t.Errorf("query timeout not loaded: %d", cfg.Query.TimeoutSeconds)
	}
	// Unset fields keep defaults
	if cfg.HTTP.Address != ":8080" {
		t.Errorf("default address not preserved: %s", cfg.HTTP.Address)
	}
}

func TestCLIFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  path: /data/shop.db
query:
  max_rows: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	flags := CLIFlags{
		ConfigFileSet: true,
		ConfigFile:    path,
		MaxRows:       25,
		MaxRowsSet:    true,
		DBPath:        "/data/other.db",
		DBPathSet:     true,
	}
	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Query.MaxRows != 25 {
		t.Errorf("flag should override file: got %d", cfg.Query.MaxRows)
	}
	if cfg.Database.Path != "/data/other.db" {
		t.Errorf("flag should override file: got %s", cfg.Database.Path)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  path: /data/shop.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("NLSQL_QUERY_MAX_ROWS", "42")
	t.Setenv("NLSQL_LLM_MODEL", "gemini-1.5-pro")

	cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true, ConfigFile: path})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Query.MaxRows != 42 {
		t.Errorf("env should override default: got %d", cfg.Query.MaxRows)
	}
	if cfg.LLM.Model != "gemini-1.5-pro" {
		t.Errorf("env should override default: got %s", cfg.LLM.Model)
	}
}

func TestGeminiAPIKeyFromFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "gemini.key")
	if err := os.WriteFile(keyPath, []byte("  test-key-123\n"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  path: /data/shop.db
llm:
  gemini_api_key_file: ` + keyPath + `
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Make sure the env var path does not shadow the file
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("NLSQL_GEMINI_API_KEY", "")

	cfg, err := LoadConfig(cfgPath, CLIFlags{ConfigFileSet: true, ConfigFile: cfgPath})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LLM.GeminiAPIKey != "test-key-123" {
		t.Errorf("expected key from file with whitespace trimmed, got %q", cfg.LLM.GeminiAPIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid sqlite",
			mutate:  func(c *Config) { c.Database.Path = "/data/shop.db" },
			wantErr: false,
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "postgres without user",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
			},
			wantErr: true,
		},
		{
			name: "postgres with user",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.User = "app"
			},
			wantErr: false,
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: true,
		},
		{
			name: "unknown llm provider",
			mutate: func(c *Config) {
				c.Database.Path = "/data/shop.db"
				c.LLM.Provider = "bard"
			},
			wantErr: true,
		},
		{
			name: "zero max rows",
			mutate: func(c *Config) {
				c.Database.Path = "/data/shop.db"
				c.Query.MaxRows = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestReloadKeepsOldConfigOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	good := `
database:
  driver: sqlite
  path: /data/shop.db
`
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	flags := CLIFlags{ConfigFileSet: true, ConfigFile: path}
	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	rc := NewReloadableConfig(cfg, path, flags)

	if err := os.WriteFile(path, []byte("database: [not a mapping"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if err := rc.Reload(); err == nil {
		t.Error("expected reload error for malformed YAML")
	}
	if rc.Get().Database.Path != "/data/shop.db" {
		t.Error("old config should be retained after failed reload")
	}
}

func TestReloadNotifiesCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	initial := `
database:
  driver: sqlite
  path: /data/shop.db
query:
  max_rows: 100
`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	flags := CLIFlags{ConfigFileSet: true, ConfigFile: path}
	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	rc := NewReloadableConfig(cfg, path, flags)
	var observed *Config
	rc.OnReload(func(c *Config) { observed = c })

	updated := `
database:
  driver: sqlite
  path: /data/shop.db
query:
  max_rows: 25
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if err := rc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if observed == nil {
		t.Fatal("callback was not invoked")
	}
	if observed.Query.MaxRows != 25 {
		t.Errorf("callback saw MaxRows %d, want 25", observed.Query.MaxRows)
	}
	if rc.Get().Query.MaxRows != 25 {
		t.Errorf("Get() returned MaxRows %d after reload, want 25", rc.Get().Query.MaxRows)
	}
}
