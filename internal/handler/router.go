package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/middleware"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/service"
	"github.com/campus-ops/clearance-api/pkg/config"
	"github.com/campus-ops/clearance-api/pkg/logger"
	corsmiddleware "github.com/campus-ops/clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-ops/clearance-api/pkg/middleware/requestid"
)

// RouterDeps bundles everything route registration needs.
type RouterDeps struct {
	Config       *config.Config
	Logger       *zap.Logger
	Auth         *service.AuthService
	Metrics      *service.MetricsService
	Forms        *FormHandler
	Signatory    *SignatoryHandler
	Notification *NotificationHandler
	Maintenance  *MaintenanceHandler
	Reports      *ReportHandler
}

// NewRouter assembles the gin engine with all middleware and routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	metricsHandler := NewMetricsHandler(deps.Metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := NewAuthHandler(deps.Auth)
	api := r.Group(deps.Config.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	// The download token is its own credential; no JWT needed.
	if deps.Reports != nil {
		api.GET("/reports/download/:token", deps.Reports.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/forms", middleware.RequireRoles(models.RoleStudent), deps.Forms.Submit)
	authed.GET("/forms", deps.Forms.List)
	authed.GET("/forms/:id", deps.Forms.Get)
	authed.POST("/forms/:id/resubmit", middleware.RequireRoles(models.RoleStudent), deps.Forms.Resubmit)

	signing := middleware.RequireRoles(models.RoleSignatory, models.RoleRegistrar, models.RoleBusinessManager, models.RoleAdmin)
	authed.POST("/forms/:id/decision", signing, deps.Signatory.Decide)
	authed.POST("/forms/:id/seen", signing, deps.Signatory.MarkSeen)
	authed.GET("/signatory/queue", signing, deps.Signatory.Queue)

	authed.GET("/notifications", deps.Notification.List)
	authed.POST("/notifications/read", deps.Notification.MarkRead)
	authed.GET("/notifications/unread-count", deps.Notification.UnreadCount)

	if deps.Reports != nil {
		staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleBusinessManager)
		authed.POST("/reports", staff, deps.Reports.Create)
		authed.GET("/reports", staff, deps.Reports.List)
		authed.GET("/reports/:id", staff, deps.Reports.Get)
	}

	authed.POST("/forms/:id/slots/:slotId/reset",
		middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar), deps.Signatory.ResetSlot)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/maintenance", deps.Maintenance.Run)

	return r
}
