package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/casevault-api/api/swagger"
	"github.com/noah-isme/casevault-api/internal/handler"
	"github.com/noah-isme/casevault-api/internal/repository"
	"github.com/noah-isme/casevault-api/internal/service"
	"github.com/noah-isme/casevault-api/pkg/cache"
	"github.com/noah-isme/casevault-api/pkg/config"
	"github.com/noah-isme/casevault-api/pkg/database"
	"github.com/noah-isme/casevault-api/pkg/jobs"
	"github.com/noah-isme/casevault-api/pkg/logger"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

// uploadGrace keeps a presigned upload pending a little past its token expiry
// so a PUT that started in time can finish before the scanner gives up on it.
const uploadGrace = 5 * time.Minute

// @title CaseVault API
// @version 1.0.0
// @description Secure case document uploads and data-retention compliance
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, upload token replay guard limited to quarantine checks", zap.Error(err))
		redisClient = nil
	}

	quarantine, err := storage.NewLocalStorage(filepath.Join(cfg.Uploads.BasePath, cfg.Uploads.QuarantineSubdir))
	if err != nil {
		logr.Fatal("failed to prepare quarantine storage", zap.Error(err))
	}
	clean, err := storage.NewLocalStorage(filepath.Join(cfg.Uploads.BasePath, cfg.Uploads.CleanSubdir))
	if err != nil {
		logr.Fatal("failed to prepare clean storage", zap.Error(err))
	}
	signer, err := storage.NewUploadTokenSigner(cfg.Uploads.TokenSigningKey, cfg.Uploads.TokenTTL)
	if err != nil {
		logr.Fatal("failed to init upload token signer", zap.Error(err))
	}

	uploadRepo := repository.NewUploadRepository(db)
	retentionRepo := repository.NewRetentionRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	ledger := repository.NewTokenLedgerRepository(redisClient, logger.Named(logr, "token-ledger"))
	defer ledger.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	authService := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	scanService := service.NewAntivirusScanService(
		uploadRepo,
		auditRepo,
		service.NewSignatureScanner(nil),
		quarantine,
		clean,
		metrics,
		logger.Named(logr, "antivirus"),
		service.AntivirusScanConfig{
			Enabled:         cfg.Antivirus.Enabled,
			BatchSize:       cfg.Antivirus.BatchSize,
			CleanPrefix:     cfg.Uploads.CleanSubdir,
			AwaitContentFor: cfg.Uploads.TokenTTL + uploadGrace,
		},
	)

	policies := service.DefaultRetentionPolicies(
		service.RetentionWindows{
			PiiDays:             cfg.Retention.PiiDays,
			RecordingsDays:      cfg.Retention.RecordingsDays,
			MedicalDays:         cfg.Retention.MedicalDays,
			HighSensitivityDays: cfg.Retention.HighSensitivityDays,
		},
		service.NewMessageRetentionStore(repository.NewMessageThreadRepository(db)),
		service.NewRecordingRetentionStore(repository.NewInterviewSessionRepository(db)),
		service.NewUploadRetentionStore(uploadRepo, quarantine, clean, cfg.Uploads.CleanSubdir, logger.Named(logr, "retention")),
	)
	retentionService := service.NewRetentionService(retentionRepo, policies, auditRepo, metrics, logger.Named(logr, "retention"))
	reportService := service.NewRetentionReportService(retentionRepo, logger.Named(logr, "retention"))
	reconcileService := service.NewReconcileService(uploadRepo, quarantine, clean, cfg.Uploads.CleanSubdir, metrics, logger.Named(logr, "reconcile"))

	scanScheduler := jobs.NewScheduler("antivirus-scan", func(ctx context.Context) error {
		_, err := scanService.RunOnce(ctx)
		return err
	}, jobs.SchedulerConfig{Interval: cfg.Antivirus.ScanInterval, RunOnStart: true, Logger: logr})

	schedulers := []*jobs.Scheduler{scanScheduler}
	if cfg.Retention.Enabled {
		schedulers = append(schedulers,
			jobs.NewScheduler("retention-enqueue", func(ctx context.Context) error {
				_, err := retentionService.EnqueueExpiredItems(ctx, time.Now().UTC())
				return err
			}, jobs.SchedulerConfig{Interval: cfg.Retention.EnqueueInterval, RunOnStart: true, Logger: logr}),
			jobs.NewScheduler("retention-execute", func(ctx context.Context) error {
				_, err := retentionService.ExecuteQueuedActions(ctx)
				return err
			}, jobs.SchedulerConfig{Interval: cfg.Retention.ExecuteInterval, Logger: logr}),
		)
	}
	if cfg.Reconcile.Enabled {
		schedulers = append(schedulers, jobs.NewScheduler("reconcile", func(ctx context.Context) error {
			_, err := reconcileService.RunOnce(ctx)
			return err
		}, jobs.SchedulerConfig{Interval: cfg.Reconcile.Interval, Logger: logr}))
	}

	uploadService := service.NewUploadService(
		uploadRepo,
		caseRepo,
		ledger,
		signer,
		quarantine,
		auditRepo,
		scanScheduler,
		metrics,
		validator.New(),
		logger.Named(logr, "uploads"),
		service.UploadServiceConfig{
			MaxSizeBytes:         cfg.Uploads.MaxSizeBytes(),
			AllowedExtensions:    cfg.Uploads.AllowedExtensions,
			GatewayPublicBaseURL: cfg.Uploads.GatewayPublicBaseURL,
		},
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:       authService,
		metrics:    metrics,
		uploads:    handler.NewUploadHandler(uploadService),
		gateway:    handler.NewGatewayHandler(uploadService, cfg.Uploads.MaxSizeBytes()),
		compliance: handler.NewComplianceHandler(retentionService, reportService, scanService, reconcileService),
		readiness:  readinessChecks(db, redisClient, quarantine, clean),
	})

	for _, scheduler := range schedulers {
		scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown incomplete", "error", err)
	}
	for _, scheduler := range schedulers {
		scheduler.Stop()
	}
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client, quarantine, clean *storage.LocalStorage) []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{
		{Name: "database", Critical: true, Check: db.PingContext},
		{Name: "quarantine_storage", Critical: true, Check: func(context.Context) error { return quarantine.Probe() }},
		{Name: "clean_storage", Critical: true, Check: func(context.Context) error { return clean.Probe() }},
	}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}
