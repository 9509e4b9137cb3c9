package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/loresmith/internal/platform/envutil"
)

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	return time.Duration(n), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = u
	}
	dd, err := parseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dd, err := parseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
		},
		Backend: BackendConfig{
			BaseURL:     "http://localhost:8000",
			Timeout:     Duration{Duration: 5 * time.Minute},
			TokenIssuer: "loresmith",
			TokenTTL:    Duration{Duration: 10 * time.Minute},
		},
		Jobs: JobsConfig{
			PollInterval: Duration{Duration: 3 * time.Second},
			EvictGrace:   Duration{Duration: 5 * time.Second},
			Count:        3,
			MaxSessions:  1000,
		},
		Redis: RedisConfig{
			KeyPrefix:    "loresmith:selection:",
			SelectionTTL: Duration{Duration: 24 * time.Hour},
			Channel:      "loresmith:sse",
		},
	}
}

// Load builds the config from defaults, then an optional JSON or YAML file
// (LORESMITH_CONFIG_PATH, or ./config/config.{json,yaml,yml}), then env overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("LORESMITH_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
				p := filepath.Join(wd, "config", name)
				if _, err := os.Stat(p); err == nil {
					cfgPath = p
					break
				}
			}
		}
	}
	if cfgPath != "" {
		if err := loadFile(cfgPath, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the file onto cfg; keys absent from the file keep their defaults.
func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse json config %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("LORESMITH_HTTP_ADDR", cfg.HTTP.Addr)
	if v := envutil.String("LORESMITH_CORS_ORIGINS", ""); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}

	cfg.Backend.BaseURL = envutil.String("LORESMITH_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout.Duration = envutil.Duration("LORESMITH_BACKEND_TIMEOUT", cfg.Backend.Timeout.Duration)
	cfg.Backend.APIKey = envutil.String("LORESMITH_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.SigningSecret = envutil.String("LORESMITH_JWT_SECRET", cfg.Backend.SigningSecret)
	cfg.Backend.TokenIssuer = envutil.String("LORESMITH_JWT_ISSUER", cfg.Backend.TokenIssuer)
	cfg.Backend.TokenAudience = envutil.String("LORESMITH_JWT_AUDIENCE", cfg.Backend.TokenAudience)

	cfg.Jobs.PollInterval.Duration = envutil.Duration("LORESMITH_POLL_INTERVAL", cfg.Jobs.PollInterval.Duration)
	cfg.Jobs.EvictGrace.Duration = envutil.Duration("LORESMITH_EVICT_GRACE", cfg.Jobs.EvictGrace.Duration)
	cfg.Jobs.Count = envutil.Int("LORESMITH_COUNT", cfg.Jobs.Count)
	cfg.Jobs.MaxSessions = envutil.Int("LORESMITH_MAX_SESSIONS", cfg.Jobs.MaxSessions)
	cfg.Jobs.AutoWorldImage = envutil.Bool("LORESMITH_AUTO_WORLD_IMAGE", cfg.Jobs.AutoWorldImage)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.SelectionTTL.Duration = envutil.Duration("LORESMITH_SELECTION_TTL", cfg.Redis.SelectionTTL.Duration)
	cfg.Redis.Channel = envutil.String("LORESMITH_SSE_CHANNEL", cfg.Redis.Channel)
}

func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}

	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout.Duration <= 0 {
		cfg.Backend.Timeout.Duration = 5 * time.Minute
	}
	if cfg.Backend.TokenTTL.Duration <= 0 {
		cfg.Backend.TokenTTL.Duration = 10 * time.Minute
	}

	if cfg.Jobs.PollInterval.Duration <= 0 {
		cfg.Jobs.PollInterval.Duration = 3 * time.Second
	}
	if cfg.Jobs.EvictGrace.Duration <= 0 {
		cfg.Jobs.EvictGrace.Duration = 5 * time.Second
	}
	if cfg.Jobs.Count <= 0 {
		cfg.Jobs.Count = 3
	}
	if cfg.Jobs.MaxSessions < 0 {
		cfg.Jobs.MaxSessions = 0
	}

	cfg.Redis.Addr = strings.TrimSpace(cfg.Redis.Addr)
	if strings.TrimSpace(cfg.Redis.KeyPrefix) == "" {
		cfg.Redis.KeyPrefix = "loresmith:selection:"
	}
	if cfg.Redis.SelectionTTL.Duration <= 0 {
		cfg.Redis.SelectionTTL.Duration = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.Redis.Channel) == "" {
		cfg.Redis.Channel = "loresmith:sse"
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
