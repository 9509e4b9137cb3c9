package app

import (
	"context"

	httpH "github.com/yungbote/loresmith/internal/http/handlers"
	"github.com/yungbote/loresmith/internal/observability"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

type Handlers struct {
	Session *httpH.SessionHandler
	Job     *httpH.JobHandler
	World   *httpH.WorldHandler
	Health  *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, clients Clients, services Services, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{}
	if rdb := clients.Redis; rdb != nil {
		checks["redis"] = httpH.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return Handlers{
		Session: httpH.NewSessionHandlerWithDeps(httpH.SessionHandlerDeps{
			Log:               log,
			Sessions:          services.Sessions,
			OnSessionsChanged: metrics.SetSessionsActive,
		}),
		Job: httpH.NewJobHandlerWithDeps(httpH.JobHandlerDeps{
			Log:      log,
			Backend:  clients.Backend,
			Tracking: services.Tracking,
			Jobs:     services.Jobs,
			Hub:      services.Hub,
			Shared:   clients.Redis != nil,
		}),
		World: httpH.NewWorldHandlerWithDeps(httpH.WorldHandlerDeps{
			Log:    log,
			Images: services.Images,
		}),
		Health: httpH.NewHealthHandler(checks),
	}
}
