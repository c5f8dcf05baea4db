// Package statistics maintains the denormalized per-subject rollup. Writes to
// the ledger mark the snapshot stale synchronously; recomputation happens on
// demand or through the periodic sweep, so the write path never pays the
// aggregation cost inline.
package statistics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/service/metrics"
)

// Windows for the short-horizon ADG aggregates.
const (
	weekWindowDays  = 7
	monthWindowDays = 30
)

// Cache coordinates snapshot staleness and recomputation.
type Cache struct {
	stats        repository.StatisticsStore
	measurements repository.MeasurementStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewCache wires a new cache instance.
func NewCache(stats repository.StatisticsStore, measurements repository.MeasurementStore, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		stats:        stats,
		measurements: measurements,
		logger:       logger,
		now:          time.Now,
	}
}

// Invalidate marks the subject's snapshot stale. Idempotent; called
// synchronously after every ledger mutation.
func (c *Cache) Invalidate(ctx context.Context, subjectID string) error {
	if err := c.stats.MarkStale(ctx, subjectID); err != nil {
		return fmt.Errorf("invalidate statistics for %s: %w", subjectID, err)
	}
	return nil
}

// Get returns the subject's snapshot. With fresh=true a stale snapshot is
// recomputed inline; otherwise it is served as-is with its stale flag so the
// caller can decide. A subject with no snapshot yet gets one computed.
func (c *Cache) Get(ctx context.Context, subjectID string, fresh bool) (*models.StatisticsSnapshot, error) {
	snap, err := c.stats.Get(ctx, subjectID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Recalculate(ctx, subjectID)
	}
	if err != nil {
		return nil, err
	}
	if fresh && snap.Stale {
		return c.Recalculate(ctx, subjectID)
	}
	return snap, nil
}

// Recalculate rebuilds every aggregate from the subject's active measurements
// in one pass and writes the snapshot. The staleness version captured before
// the scan guards against clearing a flag that was re-raised mid-computation.
func (c *Cache) Recalculate(ctx context.Context, subjectID string) (*models.StatisticsSnapshot, error) {
	var version int64
	if existing, err := c.stats.Get(ctx, subjectID); err == nil {
		version = existing.StaleVersion
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	chain, err := c.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load measurements for %s: %w", subjectID, err)
	}

	snap := c.aggregate(subjectID, chain)
	snap.StaleVersion = version

	if err := c.stats.Write(ctx, snap); err != nil {
		return nil, fmt.Errorf("write statistics for %s: %w", subjectID, err)
	}

	// Re-read so the caller sees the authoritative stale flag: the write is
	// conditional and may have left the snapshot stale.
	stored, err := c.stats.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("statistics recalculated",
		zap.String("subject_id", subjectID),
		zap.Int("measurements", snap.TotalMeasurements),
		zap.Bool("still_stale", stored.Stale))
	return stored, nil
}

func (c *Cache) aggregate(subjectID string, chain []models.Measurement) *models.StatisticsSnapshot {
	now := c.now().UTC()
	snap := &models.StatisticsSnapshot{
		SubjectID:         subjectID,
		TotalMeasurements: len(chain),
		LastCalculated:    &now,
	}
	if len(chain) == 0 {
		return snap
	}

	first, last := chain[0], chain[len(chain)-1]
	firstDate, lastDate := first.Date, last.Date
	snap.FirstDate = &firstDate
	snap.LastDate = &lastDate
	snap.StartingWeight = &first.Value
	snap.CurrentWeight = &last.Value

	high, low := chain[0].Value, chain[0].Value
	weekCutoff := now.AddDate(0, 0, -weekWindowDays)
	monthCutoff := now.AddDate(0, 0, -monthWindowDays)

	var (
		adgSum                float64
		adgCount              int
		best, worst           *float64
		weekSum, monthSum     float64
		weekCount, monthCount int
	)

	for i := range chain {
		m := &chain[i]
		if m.Value > high {
			high = m.Value
		}
		if m.Value < low {
			low = m.Value
		}
		if m.ADG == nil {
			continue
		}
		adg := *m.ADG
		adgSum += adg
		adgCount++
		if best == nil || adg > *best {
			best = &adg
		}
		if worst == nil || adg < *worst {
			worst = &adg
		}
		if !m.Date.Before(weekCutoff) {
			weekSum += adg
			weekCount++
		}
		if !m.Date.Before(monthCutoff) {
			monthSum += adg
			monthCount++
		}
	}

	snap.HighestWeight = &high
	snap.LowestWeight = &low
	if adgCount > 0 {
		avg := metrics.Round3(adgSum / float64(adgCount))
		snap.AverageADG = &avg
		snap.BestADG = best
		snap.WorstADG = worst
	}
	if weekCount > 0 {
		week := metrics.Round3(weekSum / float64(weekCount))
		snap.WeekADG = &week
	}
	if monthCount > 0 {
		month := metrics.Round3(monthSum / float64(monthCount))
		snap.MonthADG = &month
	}
	return snap
}

// SweepPending recalculates every subject currently flagged stale. A failure
// for one subject is logged and skipped; the sweep always visits the rest.
func (c *Cache) SweepPending(ctx context.Context) (int, error) {
	subjects, err := c.stats.ListStaleSubjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stale subjects: %w", err)
	}

	var done int
	for _, subjectID := range subjects {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := c.Recalculate(ctx, subjectID); err != nil {
			c.logger.Warn("sweep item failed",
				zap.String("subject_id", subjectID),
				zap.Error(err))
			continue
		}
		done++
	}

	c.logger.Info("statistics sweep complete",
		zap.Int("pending", len(subjects)),
		zap.Int("recalculated", done))
	return done, nil
}
