// Package memory provides in-process implementations of the repository
// contracts. It backs the test suites and local development runs; semantics
// mirror the mongodb package, including snapshot staleness versioning.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
)

// Store holds all four collections behind a single mutex. Per-subject write
// serialization is the ledger service's job; the mutex here only guards map
// access.
type Store struct {
	mu           sync.RWMutex
	seq          int64
	measurements map[primitive.ObjectID]models.Measurement
	goals        map[primitive.ObjectID]models.Goal
	snapshots    map[string]models.StatisticsSnapshot
	audit        []models.AuditEntry
}

// NewStore builds an empty in-memory store.
func NewStore() *Store {
	return &Store{
		measurements: make(map[primitive.ObjectID]models.Measurement),
		goals:        make(map[primitive.ObjectID]models.Goal),
		snapshots:    make(map[string]models.StatisticsSnapshot),
	}
}

// Insert stores a measurement, assigning its ID and insertion sequence.
func (s *Store) Insert(_ context.Context, m *models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	m.ID = primitive.NewObjectID()
	m.Seq = s.seq
	s.measurements[m.ID] = *m
	return nil
}

// Update replaces a stored measurement.
func (s *Store) Update(_ context.Context, m *models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.measurements[m.ID]; !ok {
		return models.ErrNotFound
	}
	s.measurements[m.ID] = *m
	return nil
}

// Get fetches a measurement owned by the subject.
func (s *Store) Get(_ context.Context, subjectID string, id primitive.ObjectID) (*models.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.measurements[id]
	if !ok || m.SubjectID != subjectID {
		return nil, models.ErrNotFound
	}
	copied := m
	return &copied, nil
}

// ListActive returns the subject's active measurements in chain order.
func (s *Store) ListActive(_ context.Context, subjectID string) ([]models.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Measurement
	for _, m := range s.measurements {
		if m.SubjectID == subjectID && m.Status == models.StatusActive {
			out = append(out, m)
		}
	}
	models.SortChain(out)
	return out, nil
}

// List returns all of the subject's measurements within the optional date
// bounds, in chain order, regardless of status.
func (s *Store) List(_ context.Context, subjectID string, from, to *time.Time) ([]models.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Measurement
	for _, m := range s.measurements {
		if m.SubjectID != subjectID {
			continue
		}
		if from != nil && m.Date.Before(*from) {
			continue
		}
		if to != nil && m.Date.After(*to) {
			continue
		}
		out = append(out, m)
	}
	models.SortChain(out)
	return out, nil
}

// InsertGoal stores a goal, assigning its ID.
func (s *Store) InsertGoal(_ context.Context, g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = primitive.NewObjectID()
	s.goals[g.ID] = *g
	return nil
}

// UpdateGoal replaces a stored goal.
func (s *Store) UpdateGoal(_ context.Context, g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[g.ID]; !ok {
		return models.ErrNotFound
	}
	s.goals[g.ID] = *g
	return nil
}

// GetGoal fetches a goal owned by the subject.
func (s *Store) GetGoal(_ context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[id]
	if !ok || g.SubjectID != subjectID {
		return nil, models.ErrNotFound
	}
	copied := g
	return &copied, nil
}

// ListGoalsBySubject returns every goal for the subject, oldest first.
func (s *Store) ListGoalsBySubject(_ context.Context, subjectID string) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Goal
	for _, g := range s.goals {
		if g.SubjectID == subjectID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListActiveGoals returns the subject's goals with status active.
func (s *Store) ListActiveGoals(ctx context.Context, subjectID string) ([]models.Goal, error) {
	all, err := s.ListGoalsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	var out []models.Goal
	for _, g := range all {
		if g.Status == models.GoalActive {
			out = append(out, g)
		}
	}
	return out, nil
}

// GetSnapshot fetches the subject's statistics snapshot.
func (s *Store) GetSnapshot(_ context.Context, subjectID string) (*models.StatisticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[subjectID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := snap
	return &copied, nil
}

// MarkStale raises the stale flag and bumps the staleness version, creating
// the snapshot row if it does not exist yet.
func (s *Store) MarkStale(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshots[subjectID]
	snap.SubjectID = subjectID
	snap.Stale = true
	snap.StaleVersion++
	s.snapshots[subjectID] = snap
	return nil
}

// WriteSnapshot replaces the aggregates. The stale flag is cleared only when
// the snapshot's captured version still matches the stored one.
func (s *Store) WriteSnapshot(_ context.Context, snap *models.StatisticsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshots[snap.SubjectID]
	stored := *snap
	if current.StaleVersion == snap.StaleVersion {
		stored.Stale = false
	} else {
		stored.Stale = true
		stored.StaleVersion = current.StaleVersion
	}
	s.snapshots[snap.SubjectID] = stored
	return nil
}

// ListStaleSubjects returns the subjects whose snapshots are flagged stale.
func (s *Store) ListStaleSubjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, snap := range s.snapshots {
		if snap.Stale {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListSnapshots returns every snapshot, ordered by subject.
func (s *Store) ListSnapshots(_ context.Context) ([]models.StatisticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.StatisticsSnapshot
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// InsertAudit appends an audit entry.
func (s *Store) InsertAudit(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = primitive.NewObjectID()
	s.audit = append(s.audit, *e)
	return nil
}

// PurgeAuditOlderThan removes audit entries before the cutoff and returns the
// number removed.
func (s *Store) PurgeAuditOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	var removed int64
	for _, e := range s.audit {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return removed, nil
}

// AuditEntries returns a copy of the stored audit log, oldest first.
func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// Measurements returns the store's MeasurementStore view. The Store itself
// satisfies the interface; the accessor keeps call sites symmetric with the
// other views.
func (s *Store) Measurements() repository.MeasurementStore { return s }

// Goals returns the store's GoalStore view.
func (s *Store) Goals() repository.GoalStore { return goalView{s} }

// Statistics returns the store's StatisticsStore view.
func (s *Store) Statistics() repository.StatisticsStore { return statsView{s} }

// Audit returns the store's AuditStore view.
func (s *Store) Audit() repository.AuditStore { return auditView{s} }

type goalView struct{ s *Store }

func (v goalView) Insert(ctx context.Context, g *models.Goal) error { return v.s.InsertGoal(ctx, g) }
func (v goalView) Update(ctx context.Context, g *models.Goal) error { return v.s.UpdateGoal(ctx, g) }
func (v goalView) Get(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	return v.s.GetGoal(ctx, subjectID, id)
}
func (v goalView) ListBySubject(ctx context.Context, subjectID string) ([]models.Goal, error) {
	return v.s.ListGoalsBySubject(ctx, subjectID)
}
func (v goalView) ListActive(ctx context.Context, subjectID string) ([]models.Goal, error) {
	return v.s.ListActiveGoals(ctx, subjectID)
}

type statsView struct{ s *Store }

func (v statsView) Get(ctx context.Context, subjectID string) (*models.StatisticsSnapshot, error) {
	return v.s.GetSnapshot(ctx, subjectID)
}
func (v statsView) MarkStale(ctx context.Context, subjectID string) error {
	return v.s.MarkStale(ctx, subjectID)
}
func (v statsView) Write(ctx context.Context, snap *models.StatisticsSnapshot) error {
	return v.s.WriteSnapshot(ctx, snap)
}
func (v statsView) ListStaleSubjects(ctx context.Context) ([]string, error) {
	return v.s.ListStaleSubjects(ctx)
}
func (v statsView) List(ctx context.Context) ([]models.StatisticsSnapshot, error) {
	return v.s.ListSnapshots(ctx)
}

type auditView struct{ s *Store }

func (v auditView) Insert(ctx context.Context, e *models.AuditEntry) error {
	return v.s.InsertAudit(ctx, e)
}
func (v auditView) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return v.s.PurgeAuditOlderThan(ctx, cutoff)
}
