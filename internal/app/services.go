package app

import (
	"context"
	"fmt"

	"github.com/yungbote/loresmith/internal/config"
	"github.com/yungbote/loresmith/internal/jobs/cache"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/observability"
	"github.com/yungbote/loresmith/internal/pipeline/selection"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/realtime"
	"github.com/yungbote/loresmith/internal/realtime/bus"
	"github.com/yungbote/loresmith/internal/session"
	"github.com/yungbote/loresmith/internal/worldimage"
)

type Services struct {
	Jobs      *cache.Cache
	Tracking  lifecycle.Options
	Hub       *realtime.SSEHub
	Publisher *bus.JobPublisher
	Sessions  *session.Registry
	Images    *worldimage.Service
}

func wireServices(log *logger.Logger, cfg *config.Config, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	store, err := wireSelectionStore(log, cfg, clients)
	if err != nil {
		return Services{}, err
	}

	jobs := cache.New()
	hub := realtime.NewSSEHub(log, 0)
	publisher := bus.NewJobPublisher(clients.Bus, log, 0)

	var observer lifecycle.Observer = lifecycle.Observers{publisher}
	if metrics != nil {
		observer = lifecycle.Observers{metrics, publisher}
	}
	tracking := lifecycle.Options{
		PollInterval: cfg.Jobs.PollInterval.Duration,
		EvictGrace:   cfg.Jobs.EvictGrace.Duration,
		Cache:        jobs,
		Observer:     observer,
		Log:          log,
	}

	images := worldimage.New(clients.Backend, worldimage.Options{
		PollInterval: tracking.PollInterval,
		EvictGrace:   tracking.EvictGrace,
		Cache:        jobs,
		Observer:     observer,
		Log:          log,
	})

	var onWorld func(string, int64)
	if cfg.Jobs.AutoWorldImage {
		onWorld = func(sessionID string, worldID int64) {
			go func() {
				if _, err := images.Generate(context.Background(), worldID); err != nil {
					log.Warn("auto world image failed", "session_id", sessionID, "world_id", worldID, "error", err)
				}
			}()
		}
	}
	sessions := session.NewRegistry(clients.Backend, store, session.Options{
		PollInterval:   tracking.PollInterval,
		EvictGrace:     tracking.EvictGrace,
		MaxSessions:    cfg.Jobs.MaxSessions,
		DefaultCount:   cfg.Jobs.Count,
		Cache:          jobs,
		Observer:       observer,
		OnWorldCreated: onWorld,
		Log:            log,
	})

	return Services{
		Jobs:      jobs,
		Tracking:  tracking,
		Hub:       hub,
		Publisher: publisher,
		Sessions:  sessions,
		Images:    images,
	}, nil
}

func wireSelectionStore(log *logger.Logger, cfg *config.Config, clients Clients) (selection.Store, error) {
	if clients.Redis == nil {
		return selection.NewMemoryStore(), nil
	}
	store, err := selection.NewRedisStore(clients.Redis, selection.RedisOptions{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.SelectionTTL.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis selection store: %w", err)
	}
	log.Info("selections stored in redis", "prefix", cfg.Redis.KeyPrefix)
	return store, nil
}

// Close stops every session and image job, then drains queued realtime events.
func (s *Services) Close(ctx context.Context, log *logger.Logger) {
	if s == nil {
		return
	}
	if s.Sessions != nil {
		if err := s.Sessions.Close(ctx); err != nil {
			log.Warn("closing sessions", "error", err)
		}
	}
	if s.Images != nil {
		s.Images.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Hub != nil {
		s.Hub.CloseAll()
	}
}
