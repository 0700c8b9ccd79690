package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/casevault-api/internal/handler"
	"github.com/noah-isme/casevault-api/internal/middleware"
	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/internal/service"
	"github.com/noah-isme/casevault-api/pkg/config"
	"github.com/noah-isme/casevault-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/casevault-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/casevault-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth       *service.AuthService
	metrics    *service.MetricsService
	uploads    *handler.UploadHandler
	gateway    *handler.GatewayHandler
	compliance *handler.ComplianceHandler
	readiness  []handler.ReadinessCheck
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExtraHeaders:   []string{handler.FilenameHeader},
	}))
	r.Use(middleware.Metrics(deps.metrics, "/metrics"))

	health := handler.NewHealthHandler(deps.metrics, deps.readiness...)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The capability token is the only credential on the gateway.
	r.PUT("/gateway/uploads/:token", deps.gateway.Put)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.auth))

	uploads := api.Group("")
	uploads.Use(middleware.RequireRoles(models.RoleClient, models.RoleStaff, models.RoleAdmin))
	uploads.POST("/uploads/presign", deps.uploads.Presign)
	uploads.POST("/uploads/confirm", deps.uploads.Confirm)
	uploads.GET("/uploads/:id", deps.uploads.Get)
	uploads.GET("/cases/:caseId/uploads", deps.uploads.ListByCase)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/retention/enqueue", deps.compliance.EnqueueRetention)
	admin.POST("/retention/execute", deps.compliance.ExecuteRetention)
	admin.GET("/retention/queue", deps.compliance.RetentionQueue)
	admin.POST("/scans/run", deps.compliance.RunScan)
	admin.POST("/reconcile/run", deps.compliance.RunReconcile)

	return r
}
