package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/instrolab/lims-portal-api/api/swagger"
	"github.com/instrolab/lims-portal-api/internal/attach"
	"github.com/instrolab/lims-portal-api/internal/autosave"
	"github.com/instrolab/lims-portal-api/internal/handler"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/middleware"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/repository"
	"github.com/instrolab/lims-portal-api/internal/service"
	"github.com/instrolab/lims-portal-api/internal/session"
	"github.com/instrolab/lims-portal-api/internal/upstream"
	"github.com/instrolab/lims-portal-api/internal/ws"
	"github.com/instrolab/lims-portal-api/pkg/cache"
	"github.com/instrolab/lims-portal-api/pkg/config"
	"github.com/instrolab/lims-portal-api/pkg/database"
	"github.com/instrolab/lims-portal-api/pkg/logger"
	corsmiddleware "github.com/instrolab/lims-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/instrolab/lims-portal-api/pkg/middleware/requestid"
	"github.com/instrolab/lims-portal-api/pkg/storage"
)

// @title LIMS Intake Portal API
// @version 1.0.0
// @description Equipment intake gateway: draft-backed sessions, record views, register exports and the customer review portal.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		ServiceToken: cfg.Upstream.ServiceToken,
		Timeout:      cfg.Upstream.Timeout,
	}, metrics, logr)
	numbering := upstream.NewNumberingClient(upstreamClient)
	drafts := upstream.NewDraftsClient(upstreamClient)
	records := upstream.NewRecordsClient(upstreamClient)
	remarks := upstream.NewRemarksClient(upstreamClient)

	var locks lockwatch.Source
	if cfg.Locks.Source == "upstream" {
		locks = upstream.NewLocksClient(upstreamClient)
	} else {
		locks = repository.NewLockRepository(redisClient, "", logr)
	}

	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Cache.RecordTTL,
		logr,
		cfg.Cache.RecordTTL > 0,
	)

	authSvc := service.NewAuthService(cfg.JWT, logr)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), cfg.Audit, logr)
	auditSvc.Start(ctx)

	staging, err := storage.NewLocalStorage(cfg.Staging.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init staging dir", "error", err)
	}
	attachMgr := attach.NewManager(staging, attach.Config{
		MaxFileSizeBytes: cfg.Staging.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Staging.AllowedMIMEs,
		PreviewPrefix:    cfg.APIPrefix + "/previews",
	}, logr)

	var hub *ws.Hub
	if cfg.Events.Enabled {
		hub = ws.NewHub(logr)
	}

	intakeDeps := service.IntakeDeps{
		Sessions:  session.NewManager(),
		Numbering: numbering,
		Drafts:    drafts,
		Saver:     drafts,
		Records:   records,
		Locks:     locks,
		Attach:    attachMgr,
		Fallback:  session.NewFallbackAllocator(filepath.Join(cfg.Staging.Dir, "serial_state.json")),
		Audit:     auditSvc,
		Metrics:   metrics,
		Cache:     cacheSvc,
	}
	if hub != nil {
		intakeDeps.Events = hub
	}
	intakeSvc := service.NewIntakeService(intakeDeps, service.IntakeConfig{
		Autosave: autosave.Config{
			DebounceDelay: cfg.Autosave.DebounceDelay,
			RetryDelay:    cfg.Autosave.RetryDelay,
		},
		LockPollInterval: cfg.Locks.PollInterval,
		IdleTTL:          cfg.Sessions.IdleTTL,
		PhotoOrigin:      cfg.Upstream.MediaURL,
	}, logr)
	intakeSvc.Start(ctx)
	metrics.RegisterSessionGauge(intakeSvc.OpenSessions)

	recordSvc := service.NewRecordService(records, locks, cacheSvc, cfg.Upstream.MediaURL, logr)

	reviewSvc := service.NewReviewService(service.ReviewDeps{
		Links:   repository.NewReviewLinkRepository(db),
		Records: records,
		Remarks: remarks,
		Locks:   locks,
		Auth:    authSvc,
		Audit:   auditSvc,
		Cache:   cacheSvc,
		Metrics: metrics,
	}, service.ReviewConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		PhotoOrigin:   cfg.Upstream.MediaURL,
		LinkTTL:       cfg.JWT.ReviewLinkTTL,
	}, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export dir", "error", err)
	}
	exportSvc := service.NewExportService(
		records,
		exportStore,
		storage.NewSignedURLSigner(cfg.Exports.SignSecret, cfg.Exports.ResultTTL),
		auditSvc,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.ResultTTL},
		logr,
	)
	if cfg.Exports.Enabled {
		go exportSvc.RunCleanup(ctx, time.Hour)
	}

	go intakeSvc.RunIdleSweeper(ctx, cfg.Sessions.IdleTTL/4)
	go runStagingCleanup(ctx, staging, cfg.Staging.CleanupInterval, cfg.Staging.MaxAge, logr)

	sessionHandler := handler.NewSessionHandler(intakeSvc, hub)
	recordHandler := handler.NewRecordHandler(recordSvc, exportSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// Token-addressed endpoints; the token itself is the credential.
	api.GET("/previews/:token", sessionHandler.Preview)
	api.GET("/exports/:token", middleware.FeatureGate(cfg.Exports.Enabled), recordHandler.Download)

	staff := api.Group("")
	staff.Use(middleware.StaffAuth(authSvc))
	{
		staff.POST("/sessions", sessionHandler.Open)
		staff.GET("/sessions/:id", sessionHandler.Get)
		staff.DELETE("/sessions/:id", sessionHandler.Close)
		staff.PATCH("/sessions/:id/form", sessionHandler.PatchForm)
		staff.POST("/sessions/:id/lines", sessionHandler.AddLine)
		staff.PATCH("/sessions/:id/lines/:index", sessionHandler.PatchLine)
		staff.DELETE("/sessions/:id/lines/:index", sessionHandler.RemoveLine)
		staff.PUT("/sessions/:id/lines/:index/routing", sessionHandler.SetRouting)
		staff.POST("/sessions/:id/lines/:index/photos", sessionHandler.StagePhoto)
		staff.DELETE("/sessions/:id/lines/:index/photos", sessionHandler.RemoveConfirmedPhoto)
		staff.DELETE("/sessions/:id/lines/:index/photos/:photoId", sessionHandler.RemoveStagedPhoto)
		staff.POST("/sessions/:id/submit", sessionHandler.Submit)
		staff.GET("/sessions/:id/events", middleware.FeatureGate(cfg.Events.Enabled), sessionHandler.Events)

		staff.GET("/inwards/:id", recordHandler.Detail)
		staff.GET("/inwards/:id/export", middleware.FeatureGate(cfg.Exports.Enabled), recordHandler.Export)
		staff.POST("/inwards/:id/review-link",
			middleware.FeatureGate(cfg.Review.Enabled),
			middleware.RequireRoles(models.RoleSupervisor, models.RoleAdmin),
			reviewHandler.IssueLink,
		)
	}

	review := api.Group("/review")
	review.Use(middleware.FeatureGate(cfg.Review.Enabled))
	review.Use(middleware.ReviewAuth(authSvc))
	{
		review.GET("/record", reviewHandler.Record)
		review.POST("/unlock", reviewHandler.Unlock)
		review.PUT("/remarks/:lineId", reviewHandler.SetRemark)
		review.POST("/finalize", reviewHandler.Finalize)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()
	logr.Sugar().Infow("portal gateway started", "addr", addr, "env", cfg.Env)

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown failed", "error", err)
	}

	// Drain sessions so in-flight drafts get a final save, then flush
	// the audit queue.
	intakeSvc.Shutdown()
	auditSvc.Stop()
	logr.Sugar().Infow("portal gateway stopped")
}

func runStagingCleanup(ctx context.Context, store *storage.LocalStorage, interval, maxAge time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(maxAge)
			if err != nil {
				logr.Warn("staging cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("staging cleanup removed orphaned files", zap.Int("count", len(removed)))
			}
		}
	}
}
