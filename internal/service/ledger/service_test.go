package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository/memory"
	"github.com/showbarn/growthengine/internal/service/goals"
	"github.com/showbarn/growthengine/internal/service/statistics"
)

const subjectID = "barrow-008"

// recordingForwarder captures forwarded audit entries.
type recordingForwarder struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (f *recordingForwarder) Send(_ context.Context, entry models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *recordingForwarder) sent() []models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AuditEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

type fixture struct {
	store     *memory.Store
	svc       *Service
	tracker   *goals.Tracker
	cache     *statistics.Cache
	forwarder *recordingForwarder
}

func newFixture() *fixture {
	store := memory.NewStore()
	tracker := goals.NewTracker(store.Goals(), nil)
	cache := statistics.NewCache(store.Statistics(), store, nil)
	forwarder := &recordingForwarder{}
	svc := NewService(store, store.Audit(), tracker, cache, forwarder, nil)
	return &fixture{store: store, svc: svc, tracker: tracker, cache: cache, forwarder: forwarder}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func appendInput(date time.Time, value float64) AppendInput {
	return AppendInput{
		Value:  value,
		Unit:   models.UnitPound,
		Date:   date,
		Method: models.MethodDigitalScale,
		Actor:  "barn-app",
	}
}

func TestAppendRejectsOutOfRangeWeight(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Append(context.Background(), subjectID, appendInput(day(2026, time.January, 1), 6000))
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestAppendRejectsUnknownMethod(t *testing.T) {
	f := newFixture()
	in := appendInput(day(2026, time.January, 1), 100)
	in.Method = "guesswork"
	_, err := f.svc.Append(context.Background(), subjectID, in)
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestAppendRejectsBadTimeOfDay(t *testing.T) {
	f := newFixture()
	in := appendInput(day(2026, time.January, 1), 100)
	tod := "25:99"
	in.TimeOfDay = &tod
	_, err := f.svc.Append(context.Background(), subjectID, in)
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestAppendRejectsDuplicateSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 101))
	require.ErrorIs(t, err, models.ErrDuplicateSlot)

	// A different time-of-day on the same date is a distinct slot.
	in := appendInput(day(2026, time.January, 1), 101)
	tod := "18:30"
	in.TimeOfDay = &tod
	_, err = f.svc.Append(ctx, subjectID, in)
	require.NoError(t, err)
}

func TestAppendDerivesAgainstPrevious(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	require.Nil(t, first.DaysSincePrevious)
	require.Nil(t, first.ADG)

	second, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)
	require.Equal(t, 10, *second.DaysSincePrevious)
	require.InDelta(t, 15.5, *second.WeightChange, 1e-9)
	require.InDelta(t, 1.55, *second.ADG, 1e-9)
}

func TestBackdatedAppendCascadesForward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	newest, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 21), 145))
	require.NoError(t, err)
	require.Equal(t, 20, *newest.DaysSincePrevious)

	// Insert between the two; the Jan 21 row must re-derive against it.
	mid, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)
	require.Equal(t, 10, *mid.DaysSincePrevious)
	require.InDelta(t, 1.55, *mid.ADG, 1e-9)

	stored, err := f.store.Get(ctx, subjectID, newest.ID)
	require.NoError(t, err)
	require.Equal(t, 10, *stored.DaysSincePrevious)
	require.InDelta(t, 29.5, *stored.WeightChange, 1e-9)
	require.InDelta(t, 2.95, *stored.ADG, 1e-9)
}

func TestAppendRunsFullPipeline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.tracker.Create(ctx, subjectID, goals.CreateInput{
		TargetWeight:   150,
		Unit:           models.UnitPound,
		TargetDate:     day(2027, time.January, 1),
		StartingWeight: 100,
		StartingDate:   day(2026, time.January, 1),
	})
	require.NoError(t, err)

	m, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 15), 120))
	require.NoError(t, err)

	// Goal refreshed from the new measurement.
	list, err := f.tracker.List(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].CurrentWeight)
	require.Equal(t, 120.0, *list[0].CurrentWeight)
	require.InDelta(t, 40.0, *list[0].ProgressPct, 1e-9)

	// Snapshot marked stale.
	snap, err := f.store.GetSnapshot(ctx, subjectID)
	require.NoError(t, err)
	require.True(t, snap.Stale)

	// Audit entry persisted and forwarded.
	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, models.AuditInsert, entries[0].Action)
	require.Equal(t, m.ID, entries[0].MeasurementID)
	require.Equal(t, "barn-app", entries[0].Actor)
	require.Nil(t, entries[0].Before)
	require.NotNil(t, entries[0].After)

	forwarded := f.forwarder.sent()
	require.Len(t, forwarded, 1)
	require.Equal(t, models.AuditInsert, forwarded[0].Action)
}

func TestBackdatedAppendRefreshesGoalFromTail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.tracker.Create(ctx, subjectID, goals.CreateInput{
		TargetWeight:   150,
		Unit:           models.UnitPound,
		TargetDate:     day(2027, time.January, 1),
		StartingWeight: 100,
		StartingDate:   day(2026, time.January, 1),
	})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 21), 145))
	require.NoError(t, err)

	// Filling in an older reading must not drag the goal's denormalized state
	// behind the newest ledger entry.
	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)

	list, err := f.tracker.List(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 145.0, *list[0].CurrentWeight)
	require.Equal(t, day(2026, time.January, 21), *list[0].LastWeightDate)
}

func TestEditValueCascades(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	second, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 120))
	require.NoError(t, err)

	newValue := 110.0
	edited, err := f.svc.Edit(ctx, subjectID, first.ID, EditInput{Value: &newValue, Actor: "barn-app"})
	require.NoError(t, err)
	require.Equal(t, 110.0, edited.Value)

	stored, err := f.store.Get(ctx, subjectID, second.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, *stored.WeightChange, 1e-9)
	require.InDelta(t, 1.0, *stored.ADG, 1e-9)

	entries := f.store.AuditEntries()
	require.Equal(t, models.AuditUpdate, entries[len(entries)-1].Action)
	require.NotNil(t, entries[len(entries)-1].Before)
	require.Equal(t, 100.0, entries[len(entries)-1].Before.Value)
}

func TestEditRejectsDuplicateSlotMove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	second, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 2), 101))
	require.NoError(t, err)

	moveTo := day(2026, time.January, 1)
	_, err = f.svc.Edit(ctx, subjectID, second.ID, EditInput{Date: &moveTo})
	require.ErrorIs(t, err, models.ErrDuplicateSlot)
}

func TestEditReactivationRejectsOccupiedSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)

	flagged := models.StatusFlagged
	_, err = f.svc.Edit(ctx, subjectID, first.ID, EditInput{Status: &flagged})
	require.NoError(t, err)

	// The slot freed up and a replacement measurement claimed it.
	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 101))
	require.NoError(t, err)

	active := models.StatusActive
	_, err = f.svc.Edit(ctx, subjectID, first.ID, EditInput{Status: &active})
	require.ErrorIs(t, err, models.ErrDuplicateSlot)

	chain, err := f.store.ListActive(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
}

func TestEditReactivationIntoFreeSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)

	flagged := models.StatusFlagged
	_, err = f.svc.Edit(ctx, subjectID, first.ID, EditInput{Status: &flagged})
	require.NoError(t, err)

	active := models.StatusActive
	back, err := f.svc.Edit(ctx, subjectID, first.ID, EditInput{Status: &active})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, back.Status)
}

func TestEditRejectsLifecycleStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)

	deleted := models.StatusDeleted
	_, err = f.svc.Edit(ctx, subjectID, m.ID, EditInput{Status: &deleted})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestSoftDeleteBridgesTheChain(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	mid, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)
	last, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 21), 145))
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, subjectID, mid.ID, "barn-app"))

	// The tail now derives against the baseline: 45 lb over 20 days.
	stored, err := f.store.Get(ctx, subjectID, last.ID)
	require.NoError(t, err)
	require.Equal(t, 20, *stored.DaysSincePrevious)
	require.InDelta(t, 2.25, *stored.ADG, 1e-9)

	// The deleted row is still readable and excluded from the active chain.
	gone, err := f.store.Get(ctx, subjectID, mid.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDeleted, gone.Status)

	active, err := f.store.ListActive(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestRestoreReinstatesDerivedFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	mid, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)
	last, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 21), 145))
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, subjectID, mid.ID, "barn-app"))
	require.NoError(t, f.svc.Restore(ctx, subjectID, mid.ID, "barn-app"))

	stored, err := f.store.Get(ctx, subjectID, last.ID)
	require.NoError(t, err)
	require.Equal(t, 10, *stored.DaysSincePrevious)
	require.InDelta(t, 2.95, *stored.ADG, 1e-9)

	entries := f.store.AuditEntries()
	require.Equal(t, models.AuditRestore, entries[len(entries)-1].Action)
}

func TestRestoreRejectsOccupiedSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, subjectID, first.ID, ""))

	// A replacement measurement took over the slot while the original was gone.
	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 102))
	require.NoError(t, err)

	err = f.svc.Restore(ctx, subjectID, first.ID, "")
	require.ErrorIs(t, err, models.ErrDuplicateSlot)

	chain, err := f.store.ListActive(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, 102.0, chain[0].Value)
}

func TestSoftDeleteGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)

	// Restoring an active measurement is invalid.
	require.ErrorIs(t, f.svc.Restore(ctx, subjectID, m.ID, ""), models.ErrValidation)

	require.NoError(t, f.svc.SoftDelete(ctx, subjectID, m.ID, ""))
	require.ErrorIs(t, f.svc.SoftDelete(ctx, subjectID, m.ID, ""), models.ErrValidation)
}

func TestLatestTracksTail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Latest(ctx, subjectID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	newest, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)

	latest, err := f.svc.Latest(ctx, subjectID)
	require.NoError(t, err)
	require.Equal(t, newest.ID, latest.ID)

	// Deleting the tail moves latest back to the prior measurement.
	require.NoError(t, f.svc.SoftDelete(ctx, subjectID, newest.ID, ""))
	latest, err = f.svc.Latest(ctx, subjectID)
	require.NoError(t, err)
	require.Equal(t, day(2026, time.January, 1), latest.Date)
}

func TestHistoryFiltersByDate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 11), 115.5))
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, subjectID, appendInput(day(2026, time.January, 21), 145))
	require.NoError(t, err)

	from := day(2026, time.January, 5)
	to := day(2026, time.January, 15)
	history, err := f.svc.History(ctx, subjectID, &from, &to)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 115.5, history[0].Value)

	all, err := f.svc.History(ctx, subjectID, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestSubjectsAreIsolated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Append(ctx, "subject-a", appendInput(day(2026, time.January, 1), 100))
	require.NoError(t, err)
	other, err := f.svc.Append(ctx, "subject-b", appendInput(day(2026, time.January, 11), 200))
	require.NoError(t, err)

	// subject-b's first measurement is its own baseline.
	require.Nil(t, other.DaysSincePrevious)
	require.Nil(t, other.ADG)
}
