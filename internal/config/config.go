package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes"`

	// AllowedOrigins feeds the CORS middleware. Empty allows the local dev frontends.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

type BackendConfig struct {
	// BaseURL is the generation backend that serves POST /jobs and GET /jobs/{id}.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Timeout bounds each individual HTTP call, independent of the poll cadence.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// APIKey is sent as a static bearer token when no signing secret is configured.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// SigningSecret switches auth to short-lived HS256 tokens that carry the user id.
	SigningSecret string   `json:"signing_secret,omitempty" yaml:"signing_secret,omitempty"`
	TokenIssuer   string   `json:"token_issuer,omitempty" yaml:"token_issuer,omitempty"`
	TokenAudience string   `json:"token_audience,omitempty" yaml:"token_audience,omitempty"`
	TokenTTL      Duration `json:"token_ttl,omitempty" yaml:"token_ttl,omitempty"`
}

type JobsConfig struct {
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
	EvictGrace   Duration `json:"evict_grace" yaml:"evict_grace"`
	Count        int      `json:"count" yaml:"count"`
	MaxSessions  int      `json:"max_sessions" yaml:"max_sessions"`

	// AutoWorldImage requests a scene image as soon as a world is assembled.
	AutoWorldImage bool `json:"auto_world_image" yaml:"auto_world_image"`
}

type RedisConfig struct {
	// Addr empty keeps selections in process memory.
	Addr         string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password     string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int      `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix    string   `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	SelectionTTL Duration `json:"selection_ttl,omitempty" yaml:"selection_ttl,omitempty"`

	// Channel carries job events between replicas.
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

type Config struct {
	Env     string        `json:"env" yaml:"env"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Backend BackendConfig `json:"backend" yaml:"backend"`
	Jobs    JobsConfig    `json:"jobs" yaml:"jobs"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
}
