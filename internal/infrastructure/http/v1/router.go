// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/auth"
	"tindahan/internal/domain/clearance"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/domain/remit"
	"tindahan/internal/domain/run"
	"tindahan/internal/infrastructure/http/v1/handlers"
	"tindahan/internal/infrastructure/http/v1/middleware"
	"tindahan/internal/infrastructure/storage/postgres"
	"tindahan/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	Pool *postgres.Pool

	JWTValidator middleware.JWTValidator

	AuthService      *auth.Service
	RunService       *run.Service
	ClearanceService *clearance.Service
	RemitService     *remit.Service
	PricingEngine    *pricing.Engine

	ProductRepo   *postgres.ProductRepo
	CustomerRepo  *postgres.CustomerRepo
	ChargeRepo    *postgres.ChargeRepo
	AuditRecorder audit.Recorder
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	manage := middleware.RequireRole(auth.RoleManager, auth.RoleAdmin)

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(base, cfg.AuthService)
		publicAuth := apiV1.Group("/auth")
		protectedAuth := apiV1.Group("/auth")
		protectedAuth.Use(middleware.Auth(cfg.JWTValidator))
		authHandler.RegisterRoutes(publicAuth, protectedAuth)

		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		catalogHandler := handlers.NewCatalogHandler(base, cfg.ProductRepo, cfg.CustomerRepo)
		catalogHandler.RegisterRoutes(protected.Group("/catalog"))

		pricingHandler := handlers.NewPricingHandler(base, cfg.PricingEngine, cfg.ProductRepo, cfg.CustomerRepo, cfg.CustomerRepo)
		pricingHandler.RegisterRoutes(protected.Group("/pricing"))

		runHandler := handlers.NewRunHandler(base, cfg.RunService)
		runHandler.RegisterRoutes(protected.Group("/runs"), manage)

		clearanceHandler := handlers.NewClearanceHandler(base, cfg.ClearanceService)
		clearanceHandler.RegisterRoutes(protected.Group("/clearance"), manage)

		remitHandler := handlers.NewRemitHandler(base, cfg.RemitService, cfg.ChargeRepo, cfg.AuditRecorder)
		remitHandler.RegisterRoutes(protected, manage)
	}

	return router
}
