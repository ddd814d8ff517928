package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/borrowsmart/lending-api/api/swagger"
	"github.com/borrowsmart/lending-api/internal/handler"
	"github.com/borrowsmart/lending-api/internal/middleware"
	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/repository"
	"github.com/borrowsmart/lending-api/internal/service"
	"github.com/borrowsmart/lending-api/pkg/cache"
	"github.com/borrowsmart/lending-api/pkg/config"
	"github.com/borrowsmart/lending-api/pkg/database"
	"github.com/borrowsmart/lending-api/pkg/logger"
	corsmiddleware "github.com/borrowsmart/lending-api/pkg/middleware/cors"
	reqidmiddleware "github.com/borrowsmart/lending-api/pkg/middleware/requestid"
)

// @title BorrowSmart Lending API
// @version 1.0.0
// @description Musical instrument lending service for schools
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	instrumentRepo := repository.NewInstrumentRepository(db)
	borrowingRepo := repository.NewBorrowingRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)
	} else {
		cacheService = service.NewCacheService(nil, metrics, cfg.Dashboard.CacheTTL, logr, false)
	}

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, validate, logr)
	catalogService := service.NewCatalogService(instrumentRepo, validate, logr)
	lendingService := service.NewLendingService(borrowingRepo, validate, logr, cfg.Lending.MaxLoanDays)
	dashboardService := service.NewDashboardService(reportRepo, borrowingRepo, cacheService, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})
	reportService := service.NewReportService(reportRepo, logr, service.ReportServiceConfig{})

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	instrumentHandler := handler.NewInstrumentHandler(catalogService)
	lendingHandler := handler.NewLendingHandler(lendingService, metrics)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	reportHandler := handler.NewReportHandler(reportService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		authed := api.Group("")
		authed.Use(middleware.JWT(authService))
		{
			authed.GET("/auth/me", authHandler.Me)
			authed.PUT("/auth/password", authHandler.ChangePassword)

			authed.GET("/instruments", instrumentHandler.List)
			authed.GET("/instruments/:id", instrumentHandler.Get)

			staff := authed.Group("")
			staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
			{
				staff.POST("/instruments", instrumentHandler.Create)
				staff.PUT("/instruments/:id", instrumentHandler.Update)
				staff.PUT("/instruments/:id/status", instrumentHandler.SetStatus)
				staff.GET("/borrowings/active", lendingHandler.Active)
				staff.GET("/reports", reportHandler.Period)
				staff.GET("/reports/export", reportHandler.Export)
				staff.GET("/dashboard/staff", dashboardHandler.Staff)
			}

			admin := authed.Group("")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.DELETE("/instruments/:id", instrumentHandler.Delete)
				admin.GET("/users", userHandler.List)
				admin.POST("/users", userHandler.Create)
				admin.PUT("/users/:id/active", userHandler.SetActive)
				admin.GET("/dashboard/admin", dashboardHandler.Admin)
			}

			authed.GET("/users/:id", middleware.RBAC("ADMIN", "STAFF", "SELF"), userHandler.Get)

			authed.POST("/borrowings", lendingHandler.Borrow)
			authed.POST("/borrowings/:id/return", lendingHandler.Return)
			authed.GET("/borrowings/history", lendingHandler.History)
			authed.GET("/borrowings/:id", lendingHandler.Get)

			authed.GET("/dashboard", dashboardHandler.ForRole)
			authed.GET("/dashboard/me", dashboardHandler.Student)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
