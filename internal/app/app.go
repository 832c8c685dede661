package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/upcycleai/internal/http"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/realtime"
	"github.com/yungbote/upcycleai/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Stores   *Stores
	Services Services
	SSEHub   *realtime.SSEHub
	Bus      realtime.Bus
	Metrics  *observability.Metrics
	Server   *http.Server

	shutdownOtel func(context.Context) error
	cancel       context.CancelFunc
}

func logModeFromEnv() string {
	for _, k := range []string{envPrefix + "_LOG_MODE", "LOG_MODE"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return "development"
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(logModeFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return NewWithConfig(ctx, log, cfg)
}

// NewWithConfig wires everything from an already loaded config.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	metrics := observability.Init(log, cfg.MetricsEnabled)
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: "upcycle",
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     cfg.OtelHeaders,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})

	stores, err := resolveStores(ctx, log, cfg)
	if err != nil {
		_ = shutdownOtel(context.Background())
		log.Sync()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	var bus realtime.Bus
	if stores.Redis != nil {
		if bus, err = realtime.NewRedisBus(log, stores.Redis, cfg.EventsChannel); err != nil {
			stores.Close()
			_ = shutdownOtel(context.Background())
			log.Sync()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
	}
	emit := services.MultiEmitter{
		&services.LogEmitter{Log: log},
		realtime.NewPublisher(log, hub, bus),
	}

	client, err := wireGemini(log, cfg)
	if err != nil {
		stores.Close()
		_ = shutdownOtel(context.Background())
		log.Sync()
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	svc, err := wireServices(ctx, log, cfg, client, stores, emit)
	if err != nil {
		stores.Close()
		_ = shutdownOtel(context.Background())
		log.Sync()
		return nil, err
	}

	server := wireServer(log, cfg, wireHandlers(log, svc, stores, hub), metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Stores:       stores,
		Services:     svc,
		SSEHub:       hub,
		Bus:          bus,
		Metrics:      metrics,
		Server:       server,
		shutdownOtel: shutdownOtel,
	}, nil
}

// Start launches background work: the cross-process event forwarder when a bus exists.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			a.Log.Warn("event forwarder not started", "error", err)
		}
	}
}

// Run serves the local API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	return a.Server.Run(ctx, a.Cfg.Addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Tutorials != nil {
		a.Services.Tutorials.CloseAll()
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(context.Background()); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Stores.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
