// Package repository declares the storage contracts the engine's services
// depend on. The mongodb package provides the production implementations; the
// memory package provides an in-process implementation used by tests and
// local development.
package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/showbarn/growthengine/internal/domain/models"
)

// MeasurementStore persists the append-only weight ledger. Insert assigns the
// record's ID and its monotonically increasing Seq. ListActive returns the
// subject's active measurements sorted in chain order (date, time-of-day with
// missing values last, seq).
type MeasurementStore interface {
	Insert(ctx context.Context, m *models.Measurement) error
	Update(ctx context.Context, m *models.Measurement) error
	Get(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Measurement, error)
	ListActive(ctx context.Context, subjectID string) ([]models.Measurement, error)
	List(ctx context.Context, subjectID string, from, to *time.Time) ([]models.Measurement, error)
}

// GoalStore persists target-weight goals.
type GoalStore interface {
	Insert(ctx context.Context, g *models.Goal) error
	Update(ctx context.Context, g *models.Goal) error
	Get(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Goal, error)
	ListActive(ctx context.Context, subjectID string) ([]models.Goal, error)
}

// StatisticsStore persists one snapshot per subject with upsert semantics.
// MarkStale raises the stale flag and bumps the staleness version. Write
// replaces the aggregate fields unconditionally but clears the stale flag only
// when the snapshot's StaleVersion still matches the stored one, so a
// re-invalidation during a recalculation is never lost.
type StatisticsStore interface {
	Get(ctx context.Context, subjectID string) (*models.StatisticsSnapshot, error)
	MarkStale(ctx context.Context, subjectID string) error
	Write(ctx context.Context, snap *models.StatisticsSnapshot) error
	ListStaleSubjects(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]models.StatisticsSnapshot, error)
}

// AuditStore persists ledger mutation records.
type AuditStore interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
