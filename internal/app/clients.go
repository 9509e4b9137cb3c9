package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/loresmith/internal/config"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/realtime/bus"
)

type Clients struct {
	Backend *client.Client

	// Redis is nil when no address is configured.
	Redis goredis.UniversalClient
	Bus   bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	backend, err := client.New(client.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout.Duration,
		Tokens:  BackendTokens(cfg.Backend),
		Log:     log,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init job backend client: %w", err)
	}

	out := Clients{Backend: backend, Bus: bus.NewLocalBus()}
	if cfg.Redis.Addr == "" {
		log.Info("redis not configured; selections and realtime stay in process")
		return out, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("redis ping: %w", err)
	}
	b, err := bus.NewRedisBus(log, rdb, cfg.Redis.Channel)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
	}
	out.Redis = rdb
	out.Bus = b
	return out, nil
}

// BackendTokens prefers minted tokens over a static key; neither means no auth header.
func BackendTokens(cfg config.BackendConfig) client.TokenSource {
	switch {
	case cfg.SigningSecret != "":
		return &client.SignedToken{
			Secret:   []byte(cfg.SigningSecret),
			Issuer:   cfg.TokenIssuer,
			Audience: cfg.TokenAudience,
			TTL:      cfg.TokenTTL.Duration,
		}
	case cfg.APIKey != "":
		return client.StaticToken(cfg.APIKey)
	default:
		return nil
	}
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
