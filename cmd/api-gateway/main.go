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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/incident-desk-api/api/swagger"
	"github.com/noah-isme/incident-desk-api/internal/handler"
	internalmiddleware "github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/realtime"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	"github.com/noah-isme/incident-desk-api/internal/service"
	"github.com/noah-isme/incident-desk-api/pkg/cache"
	"github.com/noah-isme/incident-desk-api/pkg/config"
	"github.com/noah-isme/incident-desk-api/pkg/database"
	"github.com/noah-isme/incident-desk-api/pkg/jobs"
	"github.com/noah-isme/incident-desk-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/incident-desk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/incident-desk-api/pkg/middleware/requestid"
	"github.com/noah-isme/incident-desk-api/pkg/storage"
)

// @title Incident Desk API
// @version 1.0.0
// @description Security incident reporting, triage and notification service
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// single-instance mode is a valid degraded state
		logr.Warn("redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := models.NewValidator()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	hub := realtime.NewHub(logr, metrics)
	var publisher realtime.Publisher = realtime.NopPublisher{}
	if cfg.Realtime.Enabled {
		publisher = hub
		if redisClient != nil {
			bridge := realtime.NewRedisBridge(redisClient, cfg.Realtime.RedisChannel, hub, logr)
			publisher = bridge
			go func() {
				if err := bridge.Run(ctx); err != nil {
					logr.Error("realtime bridge stopped", zap.Error(err))
				}
			}()
		}
	}

	auditSvc := service.NewAuditService(auditRepo, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
	})
	authSvc := service.NewAuthService(userRepo, sessionRepo, tokenSvc, auditSvc, metrics, validate, logr)
	userSvc := service.NewUserService(userRepo, authSvc, auditSvc, validate, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, publisher, metrics, logr)
	notifyQueue := jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Notify.Retries,
		RetryDelay: cfg.Notify.RetryDelay,
		Logger:     logr,
		DeadLetter: notificationSvc.DeadLetter,
	})
	// outlives the signal context so in-flight requests can still enqueue during shutdown
	notifyQueue.Start(context.Background())
	notificationSvc.UseQueue(notifyQueue)

	store, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Fatal("failed to prepare uploads dir", zap.String("dir", cfg.Uploads.Dir), zap.Error(err))
	}
	evidenceSvc := service.NewEvidenceService(
		store,
		storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL),
		service.EvidenceConfig{
			MaxFiles:          cfg.Uploads.MaxFiles,
			MaxFileSize:       cfg.Uploads.MaxFileSizeBytes,
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
		},
		logr,
	)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Incidents.StatsCacheTTL, logr, redisClient != nil)

	incidentSvc := service.NewIncidentService(service.IncidentServiceDeps{
		Repo:      incidentRepo,
		Users:     userRepo,
		Audit:     auditSvc,
		Notifier:  notificationSvc,
		Cache:     cacheSvc,
		Evidence:  evidenceSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	}, service.IncidentConfig{
		StatsCacheTTL:  cfg.Incidents.StatsCacheTTL,
		ExportCSVLimit: cfg.Incidents.ExportCSVLimit,
		ExportPDFLimit: cfg.Incidents.ExportPDFLimit,
	})
	evidenceSvc.UseIncidents(incidentSvc)

	authenticator := internalmiddleware.NewAuthenticator(tokenSvc, userRepo, auditSvc)

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Timing())
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.ServerErrorAudit(auditSvc))

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := handler.Routes{
		Auth: handler.NewAuthHandler(authSvc, handler.CookieSettings{
			Path:   cfg.APIPrefix + "/auth",
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Cookie.Secure,
			MaxAge: tokenSvc.RefreshExpiry(),
		}),
		Users:         handler.NewUserHandler(userSvc),
		Incidents:     handler.NewIncidentHandler(incidentSvc, evidenceSvc),
		Evidence:      handler.NewEvidenceHandler(evidenceSvc, cfg.APIPrefix+"/evidence"),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Audit:         handler.NewAuditHandler(auditSvc),
		Authenticator: authenticator,
		Auditor:       auditSvc,
		Logger:        logr,
	}
	if cfg.Realtime.Enabled {
		routes.Realtime = handler.NewRealtimeHandler(authenticator, hub, cfg.CORS.AllowedOrigins, logr)
	}
	if cfg.RateLimit.Enabled {
		routes.AuthLimiter, routes.APILimiter = newLimiters(redisClient, cfg.RateLimit)
	}
	routes.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	notifyQueue.Stop()
}

func newLimiters(client *redis.Client, cfg config.RateLimitConfig) (internalmiddleware.Limiter, internalmiddleware.Limiter) {
	if client != nil {
		return internalmiddleware.NewRedisLimiter(client, "incident-desk:ratelimit:auth:", cfg.AuthPerMinute),
			internalmiddleware.NewRedisLimiter(client, "incident-desk:ratelimit:api:", cfg.APIPerMinute)
	}
	return internalmiddleware.NewMemoryLimiter(cfg.AuthPerMinute), internalmiddleware.NewMemoryLimiter(cfg.APIPerMinute)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
