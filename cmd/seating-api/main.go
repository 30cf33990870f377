package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/exam-seating-api/api/swagger"
	"github.com/noah-isme/exam-seating-api/internal/handler"
	"github.com/noah-isme/exam-seating-api/internal/middleware"
	"github.com/noah-isme/exam-seating-api/internal/repository"
	"github.com/noah-isme/exam-seating-api/internal/service"
	"github.com/noah-isme/exam-seating-api/pkg/cache"
	"github.com/noah-isme/exam-seating-api/pkg/config"
	"github.com/noah-isme/exam-seating-api/pkg/database"
	"github.com/noah-isme/exam-seating-api/pkg/export"
	"github.com/noah-isme/exam-seating-api/pkg/jobs"
	"github.com/noah-isme/exam-seating-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-seating-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/exam-seating-api/pkg/middleware/requestid"
	"github.com/noah-isme/exam-seating-api/pkg/storage"
)

// @title Exam Seating API
// @version 1.0.0
// @description Seat allocation engine and seating chart services for exams
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and allocation lock", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()
	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	rosterRepo := repository.NewRosterRepository(db)
	hallRepo := repository.NewExamHallRepository(db)
	assignmentRepo := repository.NewSeatAssignmentRepository(db)
	lockRepo := repository.NewAllocationLockRepository(redisClient)
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient), metricsSvc, cfg.Seating.CacheTTL, logr, cfg.Seating.CacheEnabled && redisClient != nil)

	allocationSvc := service.NewSeatAllocationService(
		rosterRepo,
		hallRepo,
		assignmentRepo,
		db,
		lockRepo,
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		service.SeatAllocationConfig{
			DefaultSeatsPerDesk: cfg.Allocation.DefaultSeatsPerDesk,
			LockTTL:             cfg.Allocation.LockTTL,
			RandomSeed:          cfg.Allocation.RandomSeed,
		},
	)
	assignmentSvc := service.NewSeatAssignmentService(assignmentRepo, hallRepo, db, cacheSvc, validate, logr, cfg.Seating.CacheTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", readiness(db, redisClient))
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.OptionalActor())
	mutating := middleware.Actor()

	allocationHandler := handler.NewAllocationHandler(allocationSvc)
	exams := api.Group("/exams/:id")
	exams.POST("/allocate", mutating, allocationHandler.Allocate)
	exams.DELETE("/allocate", mutating, allocationHandler.Clear)
	exams.POST("/allocate/preview", allocationHandler.Preview)

	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	exams.GET("/assignments", assignmentHandler.List)
	exams.GET("/assignments/stats", assignmentHandler.Stats)
	exams.GET("/assignments/students/:studentId", assignmentHandler.GetForStudent)
	exams.PATCH("/assignments/:assignmentId", mutating, assignmentHandler.Override)
	exams.DELETE("/assignments/:assignmentId", mutating, assignmentHandler.Delete)

	if cfg.Exports.Enabled {
		queue, err := setupExports(ctx, cfg, db, assignmentRepo, validate, logr, exams, api)
		if err != nil {
			logr.Sugar().Fatalw("exports setup failed", "error", err)
		}
		defer queue.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
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
}

func setupExports(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	assignments *repository.SeatAssignmentRepository,
	validate *validator.Validate,
	logr *zap.Logger,
	exams *gin.RouterGroup,
	api *gin.RouterGroup,
) (*jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewSeatingExportService(
		repository.NewSeatingExportRepository(db),
		assignments,
		nil,
		files,
		export.NewCSVExporter(),
		signer,
		validate,
		logr,
		service.SeatingExportConfig{APIPrefix: cfg.APIPrefix},
	)

	queue := jobs.NewQueue("seating-exports", exportSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		BufferSize: 64,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnFailure:  exportSvc.HandleFailure,
		Logger:     logr,
	})
	exportSvc.SetQueue(queue)
	queue.Start(ctx)
	exportSvc.RecoverPendingJobs(ctx)

	interval := cfg.Exports.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := exportSvc.PurgeExpired(cfg.Exports.SignedURLTTL); err != nil {
					logr.Warn("export cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	exportHandler := handler.NewSeatingExportHandler(exportSvc)
	exams.POST("/seating/exports", middleware.Actor(), exportHandler.Create)
	api.GET("/seating/exports/download", exportHandler.Download)
	api.GET("/seating/exports/:jobId", exportHandler.Status)
	return queue, nil
}

func readiness(db *sqlx.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"database": "ok", "redis": "disabled"}
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	}
}
