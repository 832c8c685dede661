package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/upcycleai/internal/http/handlers"
	httpMW "github.com/yungbote/upcycleai/internal/http/middleware"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	AllowedOrigins []string

	HealthHandler   *httpH.HealthHandler
	ProfileHandler  *httpH.ProfileHandler
	AnalysisHandler *httpH.AnalysisHandler
	ProjectHandler  *httpH.ProjectHandler
	TutorialHandler *httpH.TutorialHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("upcycle", otelgin.WithFilter(func(req *http.Request) bool {
		return req.URL.Path != "/metrics" && req.URL.Path != "/healthcheck"
	})))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics, "/metrics", "/api/events"))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.SSEStream)
		}

		// Profile
		if cfg.ProfileHandler != nil {
			api.GET("/profile", cfg.ProfileHandler.GetProfile)
			api.GET("/profile/history", cfg.ProfileHandler.RecentScans)
			api.PUT("/profile/theme", cfg.ProfileHandler.UpdateTheme)
			api.POST("/profile/premium", cfg.ProfileHandler.UpgradeToPremium)
		}

		// Analysis
		if cfg.AnalysisHandler != nil {
			api.POST("/analyze", cfg.AnalysisHandler.Analyze)
			api.GET("/analysis", cfg.AnalysisHandler.Current)
			api.POST("/history/:id/replay", cfg.AnalysisHandler.ReplayHistory)
			api.GET("/tip", cfg.AnalysisHandler.Tip)
		}

		// Projects
		if cfg.ProjectHandler != nil {
			api.GET("/projects/:id", cfg.ProjectHandler.GetProject)
			api.GET("/projects/:id/image", cfg.ProjectHandler.GetImage)
			api.POST("/projects/:id/expand", cfg.ProjectHandler.Expand)
			api.POST("/projects/:id/materials", cfg.ProjectHandler.Materials)
			api.POST("/projects/:id/complete", cfg.ProjectHandler.Complete)
			api.GET("/saved", cfg.ProjectHandler.ListSaved)
			api.POST("/saved/:id/toggle", cfg.ProjectHandler.ToggleSave)
		}

		// Tutorials
		if cfg.TutorialHandler != nil {
			api.POST("/tutorials", cfg.TutorialHandler.Open)
			api.GET("/tutorials/:id/steps/:step/image", cfg.TutorialHandler.StepImage)
			api.GET("/tutorials/:id/steps/:step/audio", cfg.TutorialHandler.StepAudio)
			api.DELETE("/tutorials/:id", cfg.TutorialHandler.Close)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "not found", "code": "not_found"}})
	})
	return r
}
