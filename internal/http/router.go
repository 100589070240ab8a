package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/config"
	"github.com/placepicker/backend/internal/http/handlers"
	"github.com/placepicker/backend/internal/http/middleware"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/service"

	_ "github.com/placepicker/backend/docs"
)

// Router wires the API. health may be nil for stores without a remote backend.
func Router(cfg config.Config, sessions *service.Sessions, places *catalog.Catalog, health kv.Pinger, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Sessions:  sessions,
		Catalog:   places,
		Health:    health,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/places", h.PlacesList)
		api.POST("/sessions", h.SessionCreate)
		api.GET("/sessions/:id", h.SessionDetails)
		api.POST("/sessions/:id/position", h.PositionSet)
		api.POST("/sessions/:id/position/error", h.PositionFail)
		api.POST("/sessions/:id/picks", h.PickCreate)
		api.POST("/sessions/:id/removal", h.RemovalRequest)
		api.POST("/sessions/:id/removal/confirm", h.RemovalConfirm)
		api.POST("/sessions/:id/removal/cancel", h.RemovalCancel)
		api.POST("/sessions/:id/removal/dismiss", h.RemovalDismiss)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/sessions", h.SessionsList)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
