package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uniportal-api/api/swagger"
	"github.com/noah-isme/uniportal-api/internal/gateway"
	"github.com/noah-isme/uniportal-api/internal/handler"
	"github.com/noah-isme/uniportal-api/internal/middleware"
	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/repository"
	"github.com/noah-isme/uniportal-api/internal/service"
	"github.com/noah-isme/uniportal-api/pkg/cache"
	"github.com/noah-isme/uniportal-api/pkg/config"
	"github.com/noah-isme/uniportal-api/pkg/database"
	"github.com/noah-isme/uniportal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uniportal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uniportal-api/pkg/middleware/requestid"
)

// @title UniPortal API
// @version 1.0.0
// @description Student portal backend: course registration and tuition payments
// @BasePath /api/v1
// @schemes http https

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
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
	}, logr)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	courseService := service.NewCourseService(courseRepo, validate, logr)
	registrationService := service.NewRegistrationService(registrationRepo, courseRepo, validate, logr, metrics)
	paymentService := service.NewPaymentService(paymentRepo, gatewayClient, userRepo, cfg.Gateway.WebhookSecret, validate, logr, metrics)
	statsService := service.NewStatsService(statsRepo, cacheRepo, cfg.Stats.CacheTTL, logr, metrics)

	authHandler := handler.NewAuthHandler(authService)
	courseHandler := handler.NewCourseHandler(courseService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	statsHandler := handler.NewStatsHandler(statsService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		// Gateway calls carry a signature, not a bearer token.
		api.POST("/payments/webhook", paymentHandler.Webhook)

		authed := api.Group("", middleware.JWT(authService))
		{
			authed.GET("/auth/me", authHandler.Me)

			authed.GET("/courses", courseHandler.List)
			authed.GET("/courses/:id", courseHandler.Get)

			authed.POST("/registrations", middleware.RequireRoles(models.RoleStudent), registrationHandler.Register)
			authed.GET("/registrations", registrationHandler.List)
			authed.POST("/registrations/:id/drop", middleware.RequireRoles(models.RoleStudent), registrationHandler.Drop)

			authed.POST("/payments/initialize", middleware.RequireRoles(models.RoleStudent), paymentHandler.Initialize)
			authed.GET("/payments", paymentHandler.List)
			authed.GET("/payments/:id", paymentHandler.Get)
			authed.GET("/payments/verify/:reference", paymentHandler.Verify)

			admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("/courses", middleware.Audit(userRepo, models.AuditActionCourseCreate, "courses"), courseHandler.Create)
				admin.PUT("/courses/:id", middleware.Audit(userRepo, models.AuditActionCourseUpdate, "courses"), courseHandler.Update)

				admin.POST("/registrations/:id/approve", middleware.Audit(userRepo, models.AuditActionRegistrationApprove, "registrations"), registrationHandler.Approve)
				admin.POST("/registrations/:id/reject", middleware.Audit(userRepo, models.AuditActionRegistrationReject, "registrations"), registrationHandler.Reject)
				admin.GET("/registrations/export", registrationHandler.Export)

				if cfg.Stats.Enabled {
					admin.GET("/stats/registrations", statsHandler.Registrations)
					admin.GET("/stats/payments", statsHandler.Payments)
				}
			}
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweeper *service.PaymentSweeper
	if cfg.Payments.SweepEnabled {
		sweeper = service.NewPaymentSweeper(paymentService, service.SweeperConfig{
			Interval:   cfg.Payments.SweepInterval,
			StaleAfter: cfg.Payments.StaleAfter,
			BatchSize:  cfg.Payments.SweepBatch,
		}, logr)
		sweeper.Start(rootCtx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("redis close failed", "error", err)
	}

	_ = os.Stdout.Sync()
}
