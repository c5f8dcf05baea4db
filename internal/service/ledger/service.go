// Package ledger owns the measurement write path. Every mutation runs the
// same ordered pipeline under a per-subject lock: derive growth metrics,
// refresh active goals, invalidate the statistics snapshot, emit an audit
// entry. The explicit pipeline replaces implicit cascading side effects so
// the control flow stays auditable without a live database.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/service/metrics"
)

// GoalNotifier receives the subject's newest ledger state after a mutation.
type GoalNotifier interface {
	OnNewMeasurement(ctx context.Context, subjectID string, m *models.Measurement) error
}

// CacheInvalidator marks a subject's statistics snapshot stale.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, subjectID string) error
}

// AuditForwarder pushes audit entries to an external sink. Delivery is
// best-effort; failures are logged, never fatal to the write.
type AuditForwarder interface {
	Send(ctx context.Context, entry models.AuditEntry) error
}

// Service implements the measurement ledger operations.
type Service struct {
	measurements repository.MeasurementStore
	audit        repository.AuditStore
	goals        GoalNotifier
	cache        CacheInvalidator
	forwarder    AuditForwarder
	logger       *zap.Logger
	now          func() time.Time

	// mu guards the lock table and the latest-measurement index. The
	// per-subject mutexes serialize the whole pipeline for one subject while
	// leaving other subjects free to proceed.
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	latest map[string]models.Measurement
}

// NewService wires the ledger service. The forwarder may be nil when no
// external audit sink is configured.
func NewService(
	measurements repository.MeasurementStore,
	audit repository.AuditStore,
	goals GoalNotifier,
	cache CacheInvalidator,
	forwarder AuditForwarder,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		measurements: measurements,
		audit:        audit,
		goals:        goals,
		cache:        cache,
		forwarder:    forwarder,
		logger:       logger,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
		latest:       make(map[string]models.Measurement),
	}
}

func (s *Service) subjectLock(subjectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	return l
}

func (s *Service) setLatest(subjectID string, m *models.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m == nil {
		delete(s.latest, subjectID)
		return
	}
	s.latest[subjectID] = *m
}

func (s *Service) cachedLatest(subjectID string) (models.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.latest[subjectID]
	return m, ok
}

// AppendInput carries a new weight observation.
type AppendInput struct {
	Value          float64                  `json:"value" binding:"required"`
	Unit           models.WeightUnit        `json:"unit" binding:"required"`
	Date           time.Time                `json:"date" binding:"required"`
	TimeOfDay      *string                  `json:"time_of_day,omitempty"`
	Method         models.MeasurementMethod `json:"method" binding:"required"`
	FeedingStatus  string                   `json:"feeding_status,omitempty"`
	WateringStatus string                   `json:"watering_status,omitempty"`
	Confidence     *int                     `json:"confidence,omitempty"`
	ShowContext    string                   `json:"show_context,omitempty"`
	Actor          string                   `json:"actor,omitempty"`
}

func (in *AppendInput) validate() error {
	if err := models.ValidateWeight(in.Value, in.Unit); err != nil {
		return err
	}
	if !models.ValidMethod(in.Method) {
		return fmt.Errorf("%w: unknown measurement method %q", models.ErrValidation, in.Method)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: measurement date is required", models.ErrValidation)
	}
	if in.TimeOfDay != nil {
		if _, err := time.Parse("15:04", *in.TimeOfDay); err != nil {
			return fmt.Errorf("%w: time_of_day must be HH:MM", models.ErrValidation)
		}
	}
	if in.Confidence != nil && (*in.Confidence < 1 || *in.Confidence > 10) {
		return fmt.Errorf("%w: confidence must be between 1 and 10", models.ErrValidation)
	}
	return nil
}

// Append validates and persists a measurement, then runs the derivation
// pipeline. The whole operation is serialized per subject so concurrent
// writers never derive against a stale previous measurement.
func (s *Service) Append(ctx context.Context, subjectID string, in AppendInput) (*models.Measurement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	lock := s.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	m := &models.Measurement{
		SubjectID:      subjectID,
		Value:          in.Value,
		Unit:           in.Unit,
		Date:           models.NormalizeDate(in.Date),
		TimeOfDay:      in.TimeOfDay,
		Method:         in.Method,
		FeedingStatus:  in.FeedingStatus,
		WateringStatus: in.WateringStatus,
		Confidence:     in.Confidence,
		ShowContext:    in.ShowContext,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.checkSlotFree(ctx, subjectID, m); err != nil {
		return nil, err
	}

	if err := s.measurements.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert measurement: %w", err)
	}

	enriched, err := s.rederiveSubject(ctx, subjectID, m.ID)
	if err != nil {
		return nil, err
	}

	s.finishMutation(ctx, subjectID, models.AuditEntry{
		Action:        models.AuditInsert,
		SubjectID:     subjectID,
		MeasurementID: enriched.ID,
		After:         enriched,
		Actor:         in.Actor,
		Timestamp:     now,
	})

	s.logger.Info("measurement appended",
		zap.String("subject_id", subjectID),
		zap.String("measurement_id", enriched.ID.Hex()),
		zap.Float64("value", enriched.Value),
		zap.String("unit", string(enriched.Unit)))
	return enriched, nil
}

// EditInput carries partial updates to a measurement. Nil fields are left
// untouched. Status may only move between active, flagged and adjusted here;
// deletion and restoration have their own operations.
type EditInput struct {
	Value      *float64                  `json:"value,omitempty"`
	Date       *time.Time                `json:"date,omitempty"`
	TimeOfDay  *string                   `json:"time_of_day,omitempty"`
	Confidence *int                      `json:"confidence,omitempty"`
	Status     *models.MeasurementStatus `json:"status,omitempty"`
	Actor      string                    `json:"actor,omitempty"`
}

// Edit mutates a measurement and re-derives the subject's chain forward in
// time. Earlier edits cascade through every later active measurement.
func (s *Service) Edit(ctx context.Context, subjectID string, id primitive.ObjectID, in EditInput) (*models.Measurement, error) {
	lock := s.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.measurements.Get(ctx, subjectID, id)
	if err != nil {
		return nil, err
	}
	before := *m

	if in.Value != nil {
		m.Value = *in.Value
	}
	if in.Date != nil {
		m.Date = models.NormalizeDate(*in.Date)
	}
	if in.TimeOfDay != nil {
		m.TimeOfDay = in.TimeOfDay
	}
	if in.Confidence != nil {
		m.Confidence = in.Confidence
	}
	if in.Status != nil {
		switch *in.Status {
		case models.StatusActive, models.StatusFlagged, models.StatusAdjusted:
			m.Status = *in.Status
		default:
			return nil, fmt.Errorf("%w: status %q not allowed on edit", models.ErrValidation, *in.Status)
		}
	}

	if err := models.ValidateWeight(m.Value, m.Unit); err != nil {
		return nil, err
	}
	if m.TimeOfDay != nil {
		if _, err := time.Parse("15:04", *m.TimeOfDay); err != nil {
			return nil, fmt.Errorf("%w: time_of_day must be HH:MM", models.ErrValidation)
		}
	}
	if m.Confidence != nil && (*m.Confidence < 1 || *m.Confidence > 10) {
		return nil, fmt.Errorf("%w: confidence must be between 1 and 10", models.ErrValidation)
	}

	// A slot conflict can appear when the slot moves, and also when a
	// non-active measurement re-enters the active chain in place.
	if m.Status == models.StatusActive && (slotChanged(&before, m) || before.Status != models.StatusActive) {
		if err := s.checkSlotFree(ctx, subjectID, m); err != nil {
			return nil, err
		}
	}

	m.UpdatedAt = s.now().UTC()
	if err := s.measurements.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update measurement: %w", err)
	}

	enriched, err := s.rederiveSubject(ctx, subjectID, m.ID)
	if err != nil {
		return nil, err
	}
	if enriched == nil {
		// The measurement left the active chain (flagged); report its stored state.
		enriched = m
	}

	s.finishMutation(ctx, subjectID, models.AuditEntry{
		Action:        models.AuditUpdate,
		SubjectID:     subjectID,
		MeasurementID: m.ID,
		Before:        &before,
		After:         enriched,
		Actor:         in.Actor,
		Timestamp:     m.UpdatedAt,
	})
	return enriched, nil
}

// SoftDelete marks a measurement deleted and cascades re-derivation. The
// record itself is preserved for audit history.
func (s *Service) SoftDelete(ctx context.Context, subjectID string, id primitive.ObjectID, actor string) error {
	return s.setStatus(ctx, subjectID, id, models.StatusDeleted, models.AuditDelete, actor)
}

// Restore returns a soft-deleted measurement to the active chain.
func (s *Service) Restore(ctx context.Context, subjectID string, id primitive.ObjectID, actor string) error {
	return s.setStatus(ctx, subjectID, id, models.StatusActive, models.AuditRestore, actor)
}

func (s *Service) setStatus(ctx context.Context, subjectID string, id primitive.ObjectID, to models.MeasurementStatus, action models.AuditAction, actor string) error {
	lock := s.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.measurements.Get(ctx, subjectID, id)
	if err != nil {
		return err
	}

	if to == models.StatusDeleted && m.Status == models.StatusDeleted {
		return fmt.Errorf("%w: measurement already deleted", models.ErrValidation)
	}
	if to == models.StatusActive && m.Status != models.StatusDeleted {
		return fmt.Errorf("%w: only deleted measurements can be restored", models.ErrValidation)
	}

	// The slot may have been taken while the measurement was deleted.
	if to == models.StatusActive {
		if err := s.checkSlotFree(ctx, subjectID, m); err != nil {
			return err
		}
	}

	before := *m
	m.Status = to
	m.UpdatedAt = s.now().UTC()
	if err := s.measurements.Update(ctx, m); err != nil {
		return fmt.Errorf("update measurement status: %w", err)
	}

	if _, err := s.rederiveSubject(ctx, subjectID, primitive.NilObjectID); err != nil {
		return err
	}

	s.finishMutation(ctx, subjectID, models.AuditEntry{
		Action:        action,
		SubjectID:     subjectID,
		MeasurementID: m.ID,
		Before:        &before,
		After:         m,
		Actor:         actor,
		Timestamp:     m.UpdatedAt,
	})

	s.logger.Info("measurement status changed",
		zap.String("subject_id", subjectID),
		zap.String("measurement_id", id.Hex()),
		zap.String("status", string(to)))
	return nil
}

// rederiveSubject reloads the active chain, recomputes every derived field in
// order, persists the rows that moved, and refreshes the latest-measurement
// index. When wanted is set, the matching enriched measurement is returned.
func (s *Service) rederiveSubject(ctx context.Context, subjectID string, wanted primitive.ObjectID) (*models.Measurement, error) {
	chain, err := s.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load chain for %s: %w", subjectID, err)
	}

	for _, idx := range metrics.RederiveChain(chain) {
		if err := s.measurements.Update(ctx, &chain[idx]); err != nil {
			return nil, fmt.Errorf("persist derived fields: %w", err)
		}
	}

	if len(chain) == 0 {
		s.setLatest(subjectID, nil)
		return nil, nil
	}
	tail := chain[len(chain)-1]
	s.setLatest(subjectID, &tail)

	if wanted.IsZero() {
		return nil, nil
	}
	for i := range chain {
		if chain[i].ID == wanted {
			return &chain[i], nil
		}
	}
	return nil, nil
}

// finishMutation runs the tail of the pipeline: goal refresh, snapshot
// invalidation, audit emission. Goals always refresh from the subject's newest
// active measurement, never from the mutated row itself, so a backdated insert
// or an edit deep in the chain cannot regress the denormalized goal state.
func (s *Service) finishMutation(ctx context.Context, subjectID string, entry models.AuditEntry) {
	if tail, ok := s.cachedLatest(subjectID); ok {
		if err := s.goals.OnNewMeasurement(ctx, subjectID, &tail); err != nil {
			s.logger.Warn("goal refresh failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}

	if err := s.cache.Invalidate(ctx, subjectID); err != nil {
		s.logger.Error("snapshot invalidation failed", zap.String("subject_id", subjectID), zap.Error(err))
	}

	if err := s.audit.Insert(ctx, &entry); err != nil {
		s.logger.Warn("audit entry not persisted", zap.String("subject_id", subjectID), zap.Error(err))
	}
	if s.forwarder != nil {
		if err := s.forwarder.Send(ctx, entry); err != nil {
			s.logger.Warn("audit forward failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
}

// Latest returns the subject's most recent active measurement. The in-memory
// index avoids an ordered scan on the hot path; a miss falls back to the
// store and repopulates the index.
func (s *Service) Latest(ctx context.Context, subjectID string) (*models.Measurement, error) {
	if m, ok := s.cachedLatest(subjectID); ok {
		return &m, nil
	}

	chain, err := s.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load chain for %s: %w", subjectID, err)
	}
	if len(chain) == 0 {
		return nil, models.ErrNotFound
	}
	tail := chain[len(chain)-1]
	s.setLatest(subjectID, &tail)
	return &tail, nil
}

// History returns the subject's measurements inside the optional date bounds.
func (s *Service) History(ctx context.Context, subjectID string, from, to *time.Time) ([]models.Measurement, error) {
	return s.measurements.List(ctx, subjectID, from, to)
}

func slotChanged(before, after *models.Measurement) bool {
	return !before.SameSlot(after.Date, after.TimeOfDay)
}

// checkSlotFree enforces the one-active-measurement-per-slot rule: it scans
// the subject's active chain for another measurement occupying m's (date,
// time-of-day) slot. Every path into the active chain goes through this check,
// whether by insertion, slot move or reactivation.
func (s *Service) checkSlotFree(ctx context.Context, subjectID string, m *models.Measurement) error {
	chain, err := s.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load chain for %s: %w", subjectID, err)
	}
	for i := range chain {
		if chain[i].ID != m.ID && chain[i].SameSlot(m.Date, m.TimeOfDay) {
			return fmt.Errorf("%w: %s %s", models.ErrDuplicateSlot, subjectID, m.Date.Format("2006-01-02"))
		}
	}
	return nil
}
