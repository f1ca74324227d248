package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/announcer-api/api/swagger"
	"github.com/noah-isme/announcer-api/internal/handler"
	"github.com/noah-isme/announcer-api/internal/middleware"
	"github.com/noah-isme/announcer-api/internal/models"
	"github.com/noah-isme/announcer-api/internal/repository"
	"github.com/noah-isme/announcer-api/internal/service"
	"github.com/noah-isme/announcer-api/pkg/cache"
	"github.com/noah-isme/announcer-api/pkg/config"
	"github.com/noah-isme/announcer-api/pkg/database"
	"github.com/noah-isme/announcer-api/pkg/jobs"
	"github.com/noah-isme/announcer-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/announcer-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/announcer-api/pkg/middleware/requestid"
)

// @title Announcer API
// @version 0.1.0
// @description Scheduled announcement broadcast service
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	announcementRepo := repository.NewAnnouncementRepository(db)
	if err := announcementRepo.EnsureSchema(ctx); err != nil {
		logr.Sugar().Fatalw("failed to prepare schema", "error", err)
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	roster := models.RosterFromMembers(cfg.Roster.Members)
	if len(roster) == 0 {
		roster = models.NewRoster(cfg.Roster.Size)
	}

	sink := service.NewLogSink(logr)
	scheduler := service.NewSchedulerService(announcementRepo, sink, roster, cacheSvc, metricsSvc, logr,
		service.SchedulerServiceConfig{RecoveryLimit: cfg.Scheduler.RecoveryLimit})

	queue := jobs.NewQueue("delivery", scheduler.Deliver, jobs.QueueConfig{
		Workers:    cfg.Scheduler.Workers,
		BufferSize: cfg.Scheduler.QueueSize,
		MaxRetries: cfg.Scheduler.MaxRetries,
		RetryDelay: cfg.Scheduler.RetryDelay,
		Logger:     logr,
	})
	scheduler.SetDispatcher(queue)
	queue.Start(ctx)

	if err := scheduler.Recover(ctx); err != nil {
		logr.Sugar().Warnw("failed to recover incomplete announcements", "error", err)
	}

	announcementSvc := service.NewAnnouncementService(announcementRepo, scheduler, validator.New(), cacheSvc, logr)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/announcements", announcementHandler.Create)
		api.GET("/announcements", announcementHandler.List)
		api.GET("/announcements/:id", announcementHandler.Get)
		api.GET("/announcements/:id/sent-to", announcementHandler.SentTo)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "roster_size", len(roster))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown failed", "error", err)
	}

	// Disarm timers first so nothing new reaches the queue, then drain it.
	scheduler.Stop()
	queue.Stop()
}
