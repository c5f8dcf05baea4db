// Package reporting turns statistics snapshots into spreadsheet rows for the
// weekly growth report.
package reporting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/repository/sheets"
)

const (
	dateLayout       = "2006-01-02"
	growthSheetRange = "Growth!A:J"
)

// Service exports per-subject growth summaries to a spreadsheet.
type Service struct {
	stats    repository.StatisticsStore
	exporter sheets.Exporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(stats repository.StatisticsStore, exporter sheets.Exporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		stats:    stats,
		exporter: exporter,
		logger:   logger,
		now:      time.Now,
	}
}

// ExportGrowthReport appends one row per subject snapshot to the growth sheet.
// Stale snapshots are exported with a marker rather than skipped; the sweep
// keeps staleness bounded and a late row beats a missing one.
func (s *Service) ExportGrowthReport(ctx context.Context) error {
	snaps, err := s.stats.List(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		s.logger.Info("growth report skipped, no snapshots yet")
		return nil
	}

	reportDate := s.now().UTC().Format(dateLayout)
	rows := make([][]interface{}, 0, len(snaps))
	for i := range snaps {
		rows = append(rows, snapshotRow(reportDate, &snaps[i]))
	}

	if err := s.exporter.AppendRows(ctx, growthSheetRange, rows); err != nil {
		return fmt.Errorf("export growth report: %w", err)
	}

	s.logger.Info("growth report exported", zap.Int("subjects", len(snaps)))
	return nil
}

func snapshotRow(reportDate string, snap *models.StatisticsSnapshot) []interface{} {
	freshness := "fresh"
	if snap.Stale {
		freshness = "stale"
	}
	return []interface{}{
		reportDate,
		snap.SubjectID,
		snap.TotalMeasurements,
		formatWeight(snap.CurrentWeight),
		formatWeight(snap.StartingWeight),
		formatWeight(snap.HighestWeight),
		formatWeight(snap.LowestWeight),
		formatADG(snap.AverageADG),
		formatADG(snap.WeekADG),
		freshness,
	}
}

func formatWeight(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatADG(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *v)
}
