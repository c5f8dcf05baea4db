package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/config"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/service/reporting"
	"github.com/showbarn/growthengine/internal/service/statistics"
)

// Scheduler runs the engine's maintenance jobs: the stale-statistics sweep,
// the audit retention purge and the weekly growth report. None of these are
// request-path calls; a job failure is logged and retried on the next tick.
type Scheduler struct {
	cron         *cron.Cron
	statsCache   *statistics.Cache
	audit        repository.AuditStore
	reportingSvc *reporting.Service
	cfg          config.Config
	logger       *zap.Logger
}

// NewScheduler creates a new scheduler instance. The reporting service may be
// nil when the Sheets export is not configured.
func NewScheduler(cfg config.Config, statsCache *statistics.Cache, audit repository.AuditStore, reportingSvc *reporting.Service, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Maintenance.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, falling back to UTC", zap.String("timezone", cfg.Maintenance.Timezone))
		loc = time.UTC
	}

	return &Scheduler{
		cron:         cron.New(cron.WithLocation(loc)),
		statsCache:   statsCache,
		audit:        audit,
		reportingSvc: reportingSvc,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.Maintenance.SweepSchedule, s.sweepStatistics); err != nil {
		s.logger.Error("failed to schedule statistics sweep", zap.Error(err))
	}
	if _, err := s.cron.AddFunc(s.cfg.Maintenance.PurgeSchedule, s.purgeAudit); err != nil {
		s.logger.Error("failed to schedule audit purge", zap.Error(err))
	}
	if s.reportingSvc != nil {
		if _, err := s.cron.AddFunc(s.cfg.Maintenance.ReportSchedule, s.exportGrowthReport); err != nil {
			s.logger.Error("failed to schedule growth report", zap.Error(err))
		}
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) sweepStatistics() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	done, err := s.statsCache.SweepPending(ctx)
	if err != nil {
		s.logger.Error("statistics sweep failed", zap.Error(err))
		return
	}
	if done > 0 {
		s.logger.Info("statistics sweep finished", zap.Int("recalculated", done))
	}
}

func (s *Scheduler) purgeAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Audit.RetentionDays)
	removed, err := s.audit.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("audit purge failed", zap.Error(err))
		return
	}
	s.logger.Info("audit purge finished", zap.Int64("removed", removed))
}

func (s *Scheduler) exportGrowthReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.reportingSvc.ExportGrowthReport(ctx); err != nil {
		s.logger.Error("growth report export failed", zap.Error(err))
		return
	}
	s.logger.Info("growth report export finished")
}
