package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LORESMITH_CONFIG_PATH", "LOG_MODE", "LORESMITH_HTTP_ADDR", "LORESMITH_BACKEND_URL",
		"LORESMITH_POLL_INTERVAL", "REDIS_ADDR", "LORESMITH_CORS_ORIGINS", "LORESMITH_JWT_SECRET",
	} {
		t.Setenv(k, "")
	}
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jobs.PollInterval.Duration != 3*time.Second || cfg.Jobs.EvictGrace.Duration != 5*time.Second {
		t.Fatalf("job cadence defaults: got=%+v", cfg.Jobs)
	}
	if cfg.Backend.Timeout.Duration != 5*time.Minute {
		t.Fatalf("backend timeout: want=5m got=%s", cfg.Backend.Timeout.Duration)
	}
	if cfg.Redis.Addr != "" || cfg.Redis.KeyPrefix != "loresmith:selection:" {
		t.Fatalf("redis defaults: got=%+v", cfg.Redis)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "loresmith.yaml")
	body := `
env: production
http:
  addr: ":9090"
backend:
  base_url: "https://gen.internal/"
  timeout: 90s
jobs:
  poll_interval: 1500ms
  auto_world_image: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LORESMITH_CONFIG_PATH", path)
	t.Setenv("LORESMITH_HTTP_ADDR", ":7070")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LORESMITH_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Fatalf("env: got=%q", cfg.Env)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("env must override file: got=%q", cfg.HTTP.Addr)
	}
	if cfg.Backend.BaseURL != "https://gen.internal" || cfg.Backend.Timeout.Duration != 90*time.Second {
		t.Fatalf("backend: got=%+v", cfg.Backend)
	}
	if cfg.Jobs.PollInterval.Duration != 1500*time.Millisecond || !cfg.Jobs.AutoWorldImage {
		t.Fatalf("jobs: got=%+v", cfg.Jobs)
	}
	if cfg.Jobs.EvictGrace.Duration != 5*time.Second {
		t.Fatalf("keys absent from file keep defaults: got=%s", cfg.Jobs.EvictGrace.Duration)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis addr: got=%q", cfg.Redis.Addr)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins: got=%v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoadJSONFromConfigDir(t *testing.T) {
	isolate(t)
	wd, _ := os.Getwd()
	if err := os.MkdirAll(filepath.Join(wd, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := `{"backend":{"base_url":"http://jobs:8000","timeout":"30s"},"jobs":{"evict_grace":"2s"}}`
	if err := os.WriteFile(filepath.Join(wd, "config", "config.json"), []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://jobs:8000" || cfg.Jobs.EvictGrace.Duration != 2*time.Second {
		t.Fatalf("json config: got backend=%+v jobs=%+v", cfg.Backend, cfg.Jobs)
	}
}

func TestLoadRejectsRelativeBackend(t *testing.T) {
	isolate(t)
	t.Setenv("LORESMITH_BACKEND_URL", "jobs-service")
	if _, err := Load(); err == nil {
		t.Fatalf("want error for non-absolute backend url")
	}
}
