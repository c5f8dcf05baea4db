package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/config"
	"github.com/showbarn/growthengine/internal/repository/mongodb"
	"github.com/showbarn/growthengine/internal/repository/sheets"
	"github.com/showbarn/growthengine/internal/scheduler"
	"github.com/showbarn/growthengine/internal/server/handlers"
	"github.com/showbarn/growthengine/internal/server/router"
	"github.com/showbarn/growthengine/internal/service/analysis"
	"github.com/showbarn/growthengine/internal/service/goals"
	"github.com/showbarn/growthengine/internal/service/ledger"
	reportingsvc "github.com/showbarn/growthengine/internal/service/reporting"
	"github.com/showbarn/growthengine/internal/service/statistics"
	"github.com/showbarn/growthengine/pkg/clients/auditsink"
	"github.com/showbarn/growthengine/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	mongoRepo, err := mongodb.NewRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	var reportingSvc *reportingsvc.Service
	if cfg.Sheets.Enabled() {
		exporter, err := sheets.NewGoogleSheetExporter(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets exporter", zap.Error(err))
		}
		reportingSvc = reportingsvc.NewService(mongoRepo.Statistics(), exporter, baseLogger.Named("svc.reporting"))
	} else {
		baseLogger.Warn("sheets export not configured, growth report disabled")
	}

	analyzer := analysis.NewAnalyzer(mongoRepo.Measurements(), baseLogger.Named("svc.analysis"))
	tracker := goals.NewTracker(mongoRepo.Goals(), baseLogger.Named("svc.goals"))
	statsCache := statistics.NewCache(mongoRepo.Statistics(), mongoRepo.Measurements(), baseLogger.Named("svc.statistics"))

	var forwarder auditsink.Sink
	if cfg.Audit.WebhookURL != "" {
		forwarder = auditsink.NewWebhookSink(cfg.Audit)
		baseLogger.Info("audit webhook forwarding enabled")
	}

	ledgerSvc := ledger.NewService(
		mongoRepo.Measurements(),
		mongoRepo.Audit(),
		tracker,
		statsCache,
		forwarder,
		baseLogger.Named("svc.ledger"),
	)

	measurementHandler := handlers.NewMeasurementHandler(ledgerSvc, baseLogger.Named("handlers.measurements"))
	goalHandler := handlers.NewGoalHandler(tracker, baseLogger.Named("handlers.goals"))
	analyticsHandler := handlers.NewAnalyticsHandler(analyzer, statsCache, baseLogger.Named("handlers.analytics"))

	engine := router.New(measurementHandler, goalHandler, analyticsHandler, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(*cfg, statsCache, mongoRepo.Audit(), reportingSvc, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
