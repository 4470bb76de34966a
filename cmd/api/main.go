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

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-approval-api/api/swagger"
	"github.com/noah-isme/attendance-approval-api/internal/handler"
	"github.com/noah-isme/attendance-approval-api/internal/repository"
	"github.com/noah-isme/attendance-approval-api/internal/router"
	"github.com/noah-isme/attendance-approval-api/internal/service"
	"github.com/noah-isme/attendance-approval-api/pkg/cache"
	"github.com/noah-isme/attendance-approval-api/pkg/config"
	"github.com/noah-isme/attendance-approval-api/pkg/database"
	"github.com/noah-isme/attendance-approval-api/pkg/export"
	"github.com/noah-isme/attendance-approval-api/pkg/jobs"
	"github.com/noah-isme/attendance-approval-api/pkg/logger"
	"github.com/noah-isme/attendance-approval-api/pkg/storage"
	"github.com/noah-isme/attendance-approval-api/pkg/validation"
)

// @title Attendance Approval API
// @version 1.0.0
// @description Two-level approval workflow for student attendance exceptions
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	readiness := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}

	accounts := repository.NewAccountRepository(db)
	tokens := repository.NewTokenRepository(db)
	requests := repository.NewRequestRepository(db)

	blobs, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		return fmt.Errorf("init attachment storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	requestOpts := []service.RequestServiceOption{
		service.WithRequestMetrics(metrics),
		service.WithAttachmentPolicy(service.AttachmentPolicy{
			MaxSizeBytes:      cfg.Attachments.MaxFileSizeBytes,
			AllowedExtensions: cfg.Attachments.AllowedExtensions,
		}),
		service.WithDownloadBasePath(cfg.APIPrefix),
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cacheRepo := repository.NewCacheRepository(client, logr)
		defer cacheRepo.Close() //nolint:errcheck

		stats := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatsTTL, logr, true, service.WithCacheNamespace(cfg.Cache.Namespace))
		requestOpts = append(requestOpts, service.WithStatsCache(stats, cfg.Cache.StatsTTL))
		readiness["redis"] = cacheRepo.Ping
	} else {
		logr.Info("stats cache disabled")
	}

	requestService := service.NewRequestService(requests, blobs, signer, logr, requestOpts...)
	authService := service.NewAuthService(accounts, tokens, validation.New(), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	exportService := service.NewExportService(requestService, logr, export.NewCSVExporter(), export.NewPDFExporter())

	maintenance := service.NewMaintenanceService(requests, blobs, tokens, metrics, cfg.Attachments.OrphanGrace, logr)
	queue := jobs.NewQueue("maintenance", maintenance.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	scheduler := cron.New()
	if cfg.Attachments.SweepSchedule != "" {
		if _, err := maintenance.Schedule(scheduler, cfg.Attachments.SweepSchedule, queue); err != nil {
			return fmt.Errorf("schedule maintenance: %w", err)
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	engine := router.New(cfg, logr, authService, metrics, &router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Requests: handler.NewRequestHandler(requestService, exportService),
		Metrics:  handler.NewMetricsHandler(metrics, readiness),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
