package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/campus-complaints-backend/internal/config"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/handlers"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/middleware"
	"github.com/ignatzorin/campus-complaints-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	feedHandler *handlers.FeedHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	campus := api.Group("/campuses/:campusId")
	campus.Use(middleware.CampusParam("campusId"))
	{
		// WebSocket авторизуется через ?token=, заголовок браузер передать не может.
		campus.GET("/reports/ws", feedHandler.Stream)

		limited := campus.Group("")
		limited.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		limited.Use(middleware.OptionalAuth(tokenManager))
		{
			limited.GET("/reports", feedHandler.ListReports)
			limited.GET("/beacons/:name", feedHandler.ResolveBeacon)
		}
	}

	return r
}
