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

	"github.com/go-playground/validator/v10"

	_ "github.com/campus-ops/clearance-api/api/swagger"
	"github.com/campus-ops/clearance-api/internal/handler"
	"github.com/campus-ops/clearance-api/internal/repository"
	"github.com/campus-ops/clearance-api/internal/service"
	"github.com/campus-ops/clearance-api/pkg/cache"
	"github.com/campus-ops/clearance-api/pkg/config"
	"github.com/campus-ops/clearance-api/pkg/database"
	"github.com/campus-ops/clearance-api/pkg/jobs"
	"github.com/campus-ops/clearance-api/pkg/logger"
	"github.com/campus-ops/clearance-api/pkg/mailer"
	"github.com/campus-ops/clearance-api/pkg/storage"
)

// @title Clearance API
// @version 1.0.0
// @description Multi-signatory clearance, enrollment and graduation approval workflows
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	formRepo := repository.NewFormRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	signatoryRepo := repository.NewSignatoryRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metrics := service.NewMetricsService()

	mail, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		logr.Sugar().Fatalw("mailer init failed", "error", err)
	}

	// The queue handler closes over the service variable so the two can
	// reference each other.
	var notificationSvc *service.NotificationService
	emailQueue := jobs.NewQueue("notification-email", func(ctx context.Context, job jobs.Job) error {
		return notificationSvc.HandleEmailJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		Logger:     logr,
	})
	notificationSvc = service.NewNotificationService(
		notificationRepo, userRepo, mail,
		cfg.Notifications, cfg.Workflow, logr,
		service.WithEmailQueue(emailQueue),
	)
	emailQueue.Start(ctx)
	defer emailQueue.Stop()

	workflowSvc := service.NewWorkflowService(
		workflowRepo, signatoryRepo, auditRepo,
		cfg.Workflow, logr,
		service.WithWorkflowNotifier(notificationSvc),
		service.WithWorkflowMetrics(metrics),
	)
	formSvc := service.NewFormService(formRepo, slotRepo, workflowRepo, signatoryRepo, notificationSvc, cfg.Workflow, logr)
	maintenanceSvc := service.NewMaintenanceService(maintenanceRepo, workflowSvc, logr)
	authSvc := service.NewAuthService(userRepo, validator.New(), cfg.JWT, logr)

	var signatorySvc *service.SignatoryService
	if cfg.Workflow.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("redis connection failed", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		signatorySvc = service.NewSignatoryService(slotRepo, signatoryRepo, userRepo, cacheRepo, cfg.Workflow, logr)
	} else {
		signatorySvc = service.NewSignatoryService(slotRepo, signatoryRepo, userRepo, nil, cfg.Workflow, logr)
	}

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		reportStore, err := storage.NewReportStore(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewDownloadSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportRepo := repository.NewReportRepository(db)
		exportSvc := service.NewExportService(
			formRepo, auditRepo, slotRepo, userRepo,
			reportStore, signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
			logr,
		)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:         cfg.Reports.SignedURLTTL,
			CleanupInterval:   cfg.Reports.CleanupInterval,
			SchedulerInterval: cfg.Reports.SchedulerInterval,
			MaxRetries:        cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartScheduler(ctx)
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Config:       cfg,
		Logger:       logr,
		Auth:         authSvc,
		Metrics:      metrics,
		Forms:        handler.NewFormHandler(formSvc),
		Signatory:    handler.NewSignatoryHandler(workflowSvc, signatorySvc),
		Notification: handler.NewNotificationHandler(notificationSvc),
		Maintenance:  handler.NewMaintenanceHandler(maintenanceSvc),
		Reports:      reportHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown incomplete", "error", err)
	}
}
