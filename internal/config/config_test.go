package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Sources.AllowedFeedDomains) == 0 {
		t.Error("default allow-list is empty")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIEFWIRE_PORT", "5123")
	t.Setenv("BRIEFWIRE_MODEL_API_KEY", "secret")
	t.Setenv("BRIEFWIRE_DATA_DIR", "/tmp/briefwire")

	cfg := defaults()
	applyEnvOverrides(&cfg)
	if cfg.Server.Port != 5123 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Model.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Model.APIKey)
	}
	if cfg.Storage.DataDir != "/tmp/briefwire" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverrides_BadIntKeepsDefault(t *testing.T) {
	t.Setenv("BRIEFWIRE_PORT", "not-a-number")
	cfg := defaults()
	applyEnvOverrides(&cfg)
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadAllowlistFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	content := "allowed_feed_domains:\n  - example.com\n  - news.example.org\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	domains, err := loadAllowlistFile(path)
	if err != nil {
		t.Fatalf("loadAllowlistFile() error = %v", err)
	}
	if len(domains) != 2 || domains[0] != "example.com" {
		t.Errorf("domains = %v", domains)
	}
}

func TestLoadAllowlistFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	if err := os.WriteFile(path, []byte("allowed_feed_domains: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadAllowlistFile(path); err == nil {
		t.Error("empty allow-list accepted")
	}
}
