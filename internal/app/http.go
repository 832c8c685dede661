package app

import (
	"context"

	"github.com/yungbote/upcycleai/internal/http"
	httpH "github.com/yungbote/upcycleai/internal/http/handlers"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Profile  *httpH.ProfileHandler
	Analysis *httpH.AnalysisHandler
	Project  *httpH.ProjectHandler
	Tutorial *httpH.TutorialHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, svc Services, stores *Stores, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	var probes []httpH.Probe
	if stores != nil && stores.Redis != nil {
		rdb := stores.Redis
		probes = append(probes, httpH.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(probes...),
		Profile:  httpH.NewProfileHandler(log, svc.Profiles),
		Analysis: httpH.NewAnalysisHandler(log, svc.Companion, svc.Projects),
		Project:  httpH.NewProjectHandler(log, svc.Companion, svc.Projects, svc.Profiles),
		Tutorial: httpH.NewTutorialHandler(log, svc.Tutorials),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		AllowedOrigins:  cfg.AllowedOrigins,
		HealthHandler:   handlers.Health,
		ProfileHandler:  handlers.Profile,
		AnalysisHandler: handlers.Analysis,
		ProjectHandler:  handlers.Project,
		TutorialHandler: handlers.Tutorial,
		RealtimeHandler: handlers.Realtime,
	})
}
