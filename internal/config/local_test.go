package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDir(t *testing.T) {
	t.Setenv("HEALTHBUDDY_HOME", "")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if filepath.Base(dir) != ".healthbuddy" {
		t.Errorf("Dir() = %q, want ending with .healthbuddy", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("Dir() = %q, want absolute path", dir)
	}

	t.Setenv("HEALTHBUDDY_HOME", "/srv/hb")
	if dir, _ := Dir(); dir != "/srv/hb" {
		t.Errorf("Dir() with HEALTHBUDDY_HOME = %q", dir)
	}
}

func TestEnsureDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HEALTHBUDDY_HOME", "")
	t.Setenv("HOME", home)

	dir, err := EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if want := filepath.Join(home, ".healthbuddy"); dir != want {
		t.Errorf("EnsureDir() = %q, want %q", dir, want)
	}
	for _, sub := range []string{"logs", "sessions", "flows"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("EnsureDir() should create %s: %v", sub, err)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7433 || cfg.Daemon.Bind != "127.0.0.1" || cfg.Daemon.LogLevel != "info" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.Onboarding.AnalysisDelay() != 3*time.Second {
		t.Errorf("AnalysisDelay() = %v; want 3s", cfg.Onboarding.AnalysisDelay())
	}
	if cfg.Storage.Backend != StorageLocal {
		t.Errorf("Storage.Backend = %q; want local", cfg.Storage.Backend)
	}
	if cfg.Archive.Enabled() || cfg.Events.Enabled {
		t.Error("archive and events should be off by default")
	}
	if cfg.LLM.DefaultProvider != "auto" {
		t.Errorf("LLM.DefaultProvider = %q; want auto", cfg.LLM.DefaultProvider)
	}
	if p := cfg.LLM.Providers["ollama"]; p == nil || p.URL != "http://localhost:11434" {
		t.Errorf("ollama provider = %+v", p)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFrom_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Port = %d; want default 7433", cfg.Daemon.Port)
	}
}

func TestLoadFrom_ConfigAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
daemon:
  port: 8100
storage:
  backend: sqlite
  path: data/sessions.db
onboarding:
  analysis_delay_ms: 500
llm:
  default_provider: claude
`)
	writeFile(t, filepath.Join(dir, "secrets.yaml"), `
providers:
  claude:
    api_key: sk-file
  unknown:
    api_key: ignored
redis:
  password: hunter2
`)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 8100 {
		t.Errorf("Port = %d; want 8100", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Bind = %q; unset keys keep defaults", cfg.Daemon.Bind)
	}
	if cfg.Onboarding.AnalysisDelay() != 500*time.Millisecond {
		t.Errorf("AnalysisDelay() = %v", cfg.Onboarding.AnalysisDelay())
	}
	if got := cfg.StoragePath(dir); got != filepath.Join(dir, "data/sessions.db") {
		t.Errorf("StoragePath() = %q", got)
	}
	if cfg.LLM.Providers["claude"].APIKey != "sk-file" {
		t.Error("secrets.yaml should populate the claude API key")
	}
	if _, ok := cfg.LLM.Providers["unknown"]; ok {
		t.Error("secrets for unknown providers should be ignored")
	}
	if cfg.Storage.RedisPassword != "hunter2" {
		t.Errorf("RedisPassword = %q", cfg.Storage.RedisPassword)
	}
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "daemon:\n  port: 8100\n")
	t.Setenv("HEALTHBUDDY_PORT", "8200")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 8200 {
		t.Errorf("Port = %d; want env override 8200", cfg.Daemon.Port)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		secrets string
	}{
		{"invalid config yaml", "daemon: [unclosed", ""},
		{"invalid secrets yaml", "", "providers: [unclosed"},
		{"invalid value", "storage:\n  backend: floppy\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.config != "" {
				writeFile(t, filepath.Join(dir, "config.yaml"), tt.config)
			}
			if tt.secrets != "" {
				writeFile(t, filepath.Join(dir, "secrets.yaml"), tt.secrets)
			}
			if _, err := LoadFrom(dir); err == nil {
				t.Error("LoadFrom() should fail")
			}
		})
	}
}

func TestStoragePath_Absolute(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Storage.Path = "/var/lib/hb.db"
	if got := cfg.StoragePath("/home/x/.healthbuddy"); got != "/var/lib/hb.db" {
		t.Errorf("StoragePath() = %q", got)
	}
}

func TestSaveLocalConfigAndSecrets(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HEALTHBUDDY_HOME", home)

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 9100
	cfg.LLM.Providers["claude"].APIKey = "must-not-be-written"
	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}
	if err := SaveSecrets(map[string]string{"claude": "sk-saved"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]any
	if err := yaml.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("config.yaml is not valid YAML: %v", err)
	}
	if strings.Contains(string(raw), "must-not-be-written") {
		t.Error("API keys must not be written to config.yaml")
	}

	info, err := os.Stat(filepath.Join(home, "secrets.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("secrets.yaml mode = %v; want 0600", info.Mode().Perm())
	}

	loaded, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if loaded.Daemon.Port != 9100 {
		t.Errorf("Port = %d; want 9100", loaded.Daemon.Port)
	}
	if loaded.LLM.Providers["claude"].APIKey != "sk-saved" {
		t.Errorf("APIKey = %q; want sk-saved", loaded.LLM.Providers["claude"].APIKey)
	}
}
