package app

import (
	"context"
	"fmt"

	"github.com/yungbote/upcycleai/internal/platform/audio"
	"github.com/yungbote/upcycleai/internal/platform/clock"
	"github.com/yungbote/upcycleai/internal/platform/gemini"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/services"
)

type Services struct {
	Gateway   services.AnalysisGateway
	Profiles  services.ProfileStore
	Projects  services.ProjectCollection
	Cache     services.ArtifactCache
	Companion services.Companion
	Tutorials services.Tutorials
}

func gatewayConfig(cfg Config) services.GatewayConfig {
	gw := services.DefaultGatewayConfig()
	if cfg.IdentifyModel != "" {
		gw.IdentifyModel = cfg.IdentifyModel
	}
	if cfg.TipModel != "" {
		gw.TipModel = cfg.TipModel
	}
	if cfg.GroundingModel != "" {
		gw.GroundingModel = cfg.GroundingModel
	}
	if cfg.SpeechModel != "" {
		gw.SpeechModel = cfg.SpeechModel
	}
	if cfg.Voice != "" {
		gw.Voice = cfg.Voice
	}
	return gw
}

// wireServices builds the services and rehydrates the profile and saved collection.
func wireServices(ctx context.Context, log *logger.Logger, cfg Config, client gemini.Client, stores *Stores, emit services.SSEEmitter) (Services, error) {
	log.Info("Wiring services...")

	gateway := services.NewAnalysisGateway(log, client, gatewayConfig(cfg))
	profiles := services.NewProfileStore(log, stores.KV, services.NewProfileNotifier(emit), services.ProfileStoreConfig{
		Clock:        clock.System,
		HistoryLimit: cfg.HistoryLimit,
	})
	projectNotifier := services.NewProjectNotifier(emit)
	projects := services.NewProjectCollection(log, stores.KV, projectNotifier)
	cache := services.NewArtifactCache(log, stores.Artifacts)
	companion := services.NewCompanion(log, gateway, profiles, projects, cache, projectNotifier)
	tutorials := services.NewTutorials(log, companion, projects, profiles, gateway, cache, projectNotifier, audio.PlayerConfig{
		Realtime: cfg.PlaybackRealtime,
	})

	if _, err := profiles.Load(ctx); err != nil {
		return Services{}, fmt.Errorf("load profile: %w", err)
	}
	if err := projects.Load(ctx); err != nil {
		return Services{}, fmt.Errorf("load saved projects: %w", err)
	}

	return Services{
		Gateway:   gateway,
		Profiles:  profiles,
		Projects:  projects,
		Cache:     cache,
		Companion: companion,
		Tutorials: tutorials,
	}, nil
}
