package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scielo-br/pid-provider/internal/handler"
	"github.com/scielo-br/pid-provider/internal/middleware"
	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/remote"
	"github.com/scielo-br/pid-provider/internal/repository"
	"github.com/scielo-br/pid-provider/internal/service"
	"github.com/scielo-br/pid-provider/pkg/cache"
	"github.com/scielo-br/pid-provider/pkg/config"
	"github.com/scielo-br/pid-provider/pkg/database"
	"github.com/scielo-br/pid-provider/pkg/jobs"
	"github.com/scielo-br/pid-provider/pkg/logger"
	corsmiddleware "github.com/scielo-br/pid-provider/pkg/middleware/cors"
	reqidmiddleware "github.com/scielo-br/pid-provider/pkg/middleware/requestid"
)

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	journalRepo := repository.NewJournalRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	requestRepo := repository.NewPidRequestRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()

	var recordCache *service.RedisRecordCache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, pid resolution runs uncached", "error", err)
		} else {
			recordCache = service.NewRedisRecordCache(redisClient, logr)
			defer redisClient.Close()
		}
	}

	remoteClient := remote.NewClient(remote.Config{
		TokenURL:    cfg.Remote.TokenURL,
		PostURL:     cfg.Remote.PostURL,
		FixPidV2URL: cfg.Remote.FixPidV2URL,
		Username:    cfg.Remote.Username,
		Password:    cfg.Remote.Password,
		Timeout:     cfg.Remote.Timeout,
		MaxRetries:  cfg.Remote.MaxRetries,
	}, logr)
	if !remoteClient.Enabled() {
		logr.Sugar().Infow("pid authority not configured, running local-only")
	}

	generator := service.NewPidGenerator(cfg.Registry.MaxPidAttempts, metricsSvc, logr)
	matcher := service.NewMatcherService(documentRepo, logr)
	syncSvc := service.NewSyncService(remoteClient, documentRepo, requestRepo, cfg.Sync.BatchSize, metricsSvc, logr)
	registrationSvc := service.NewRegistrationService(
		journalRepo,
		issueRepo,
		documentRepo,
		matcher,
		generator,
		syncSvc,
		cfg.Registry.MaxStoreRetries,
		metricsSvc,
		logr,
	)
	batchSvc := service.NewBatchService(registrationSvc, logr)
	fixPidSvc := service.NewFixPidService(documentRepo, remoteClient, logr)

	var recordSvc *service.RecordService
	if recordCache != nil {
		recordSvc = service.NewRecordService(documentRepo, recordCache, cfg.Registry.CacheTTL, logr)
	} else {
		recordSvc = service.NewRecordService(documentRepo, nil, cfg.Registry.CacheTTL, logr)
	}

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	pidHandler := handler.NewPidHandler(registrationSvc, batchSvc, recordSvc, syncSvc)
	fixPidHandler := handler.NewFixPidHandler(fixPidSvc)

	if cfg.Sync.Enabled {
		queue := jobs.NewQueue("pid-sync", func(ctx context.Context, job jobs.Job) error {
			synced, err := syncSvc.SynchronizePending(ctx, "scheduler")
			if err != nil {
				return err
			}
			logr.Sugar().Infow("background sync pass finished", "synchronized", synced)
			return nil
		}, jobs.QueueConfig{
			Workers:    cfg.Sync.Workers,
			MaxRetries: cfg.Sync.MaxRetries,
			RetryDelay: cfg.Sync.RetryDelay,
			Logger:     logr,
		})
		queue.Start(context.Background())
		defer queue.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()
			for range ticker.C {
				job := jobs.Job{ID: uuid.NewString(), Type: "synchronize_pending"}
				if err := queue.Enqueue(job); err != nil {
					logr.Sugar().Warnw("unable to enqueue sync pass", "error", err)
				}
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/token", authHandler.Token)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.POST("", pidHandler.Register)
	protected.POST("/is_registered", pidHandler.IsRegistered)
	protected.GET("/documents/:v3", pidHandler.GetByV3)
	protected.POST("/fix_pid_v2", fixPidHandler.FixPidV2)
	protected.POST("/sync", middleware.RequireRole(models.RoleAdmin), pidHandler.SynchronizePending)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
