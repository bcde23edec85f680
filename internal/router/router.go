package router

import (
	"time"

	"neargo/config"
	"neargo/internal/handler"
	"neargo/internal/ingest"
	"neargo/internal/metrics"
	"neargo/internal/middleware"
	"neargo/internal/presence"
	"neargo/internal/query"
	"neargo/internal/watch"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Setup wires the core components into the gin engine. The registry,
// engine, hub and pipeline are built in main so their background loops
// share the process lifecycle.
func Setup(cfg *config.Config, reg *presence.Registry, engine *query.Engine, hub *watch.Hub, pipeline *ingest.Pipeline) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(300, 60*time.Second)))

	registerHandler := handler.NewRegisterHandler(cfg, reg)
	locationHandler := handler.NewLocationHandler(pipeline, reg)
	nearbyHandler := handler.NewNearbyHandler(engine, reg)
	healthHandler := handler.NewHealthHandler(reg, hub)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		api.POST("/register", registerHandler.Register)

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.POST("/location", locationHandler.ReportLocation)
			me.GET("/location", locationHandler.GetMyLocation)
		}

		api.GET("/nearby", authMw, nearbyHandler.FindNearby)
	}

	r.GET("/ws/watch", handler.UpgradeWatchWS(cfg, hub, engine))
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
