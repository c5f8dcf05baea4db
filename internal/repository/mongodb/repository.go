// Package mongodb implements the repository contracts on MongoDB. One client
// backs four collections: measurements, goals, statistics and audit_log.
// Chain ordering for measurements is applied in Go through models.SortChain so
// the comparator matches the memory implementation exactly.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/showbarn/growthengine/internal/domain/models"
)

const (
	measurementsCollection = "measurements"
	goalsCollection        = "goals"
	statisticsCollection   = "statistics"
	auditCollection        = "audit_log"
	countersCollection     = "counters"
)

// Repository owns the MongoDB client and hands out per-collection stores.
type Repository struct {
	client *mongo.Client
	dbName string
}

// NewRepository connects to MongoDB and verifies the connection.
func NewRepository(ctx context.Context, uri, dbName string) (*Repository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Repository{client: client, dbName: dbName}, nil
}

// Close closes the MongoDB connection.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repository) collection(name string) *mongo.Collection {
	return r.client.Database(r.dbName).Collection(name)
}

// nextSeq returns the next value of the named monotonic counter.
func (r *Repository) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := r.collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", name, err)
	}
	return doc.Value, nil
}

// Measurements returns the ledger store.
func (r *Repository) Measurements() *MeasurementRepository {
	return &MeasurementRepository{repo: r}
}

// Goals returns the goal store.
func (r *Repository) Goals() *GoalRepository {
	return &GoalRepository{repo: r}
}

// Statistics returns the snapshot store.
func (r *Repository) Statistics() *StatisticsRepository {
	return &StatisticsRepository{repo: r}
}

// Audit returns the audit store.
func (r *Repository) Audit() *AuditRepository {
	return &AuditRepository{repo: r}
}

// MeasurementRepository persists the weight ledger.
type MeasurementRepository struct {
	repo *Repository
}

// Insert stores a measurement, assigning its ID and insertion sequence.
func (m *MeasurementRepository) Insert(ctx context.Context, rec *models.Measurement) error {
	seq, err := m.repo.nextSeq(ctx, "measurement_seq")
	if err != nil {
		return err
	}
	rec.Seq = seq

	res, err := m.repo.collection(measurementsCollection).InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = oid
	}
	return nil
}

// Update replaces a stored measurement by ID.
func (m *MeasurementRepository) Update(ctx context.Context, rec *models.Measurement) error {
	res, err := m.repo.collection(measurementsCollection).ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec)
	if err != nil {
		return fmt.Errorf("update measurement %s: %w", rec.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Get fetches a measurement owned by the subject.
func (m *MeasurementRepository) Get(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Measurement, error) {
	var rec models.Measurement
	err := m.repo.collection(measurementsCollection).
		FindOne(ctx, bson.M{"_id": id, "subject_id": subjectID}).
		Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get measurement %s: %w", id.Hex(), err)
	}
	return &rec, nil
}

// ListActive returns the subject's active measurements in chain order.
func (m *MeasurementRepository) ListActive(ctx context.Context, subjectID string) ([]models.Measurement, error) {
	return m.list(ctx, bson.M{"subject_id": subjectID, "status": models.StatusActive})
}

// List returns the subject's measurements within the optional date bounds.
func (m *MeasurementRepository) List(ctx context.Context, subjectID string, from, to *time.Time) ([]models.Measurement, error) {
	filter := bson.M{"subject_id": subjectID}
	dateFilter := bson.M{}
	if from != nil {
		dateFilter["$gte"] = *from
	}
	if to != nil {
		dateFilter["$lte"] = *to
	}
	if len(dateFilter) > 0 {
		filter["date"] = dateFilter
	}
	return m.list(ctx, filter)
}

func (m *MeasurementRepository) list(ctx context.Context, filter bson.M) ([]models.Measurement, error) {
	cursor, err := m.repo.collection(measurementsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Measurement
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode measurements: %w", err)
	}
	models.SortChain(out)
	return out, nil
}

// GoalRepository persists target-weight goals.
type GoalRepository struct {
	repo *Repository
}

// Insert stores a goal, assigning its ID.
func (g *GoalRepository) Insert(ctx context.Context, goal *models.Goal) error {
	res, err := g.repo.collection(goalsCollection).InsertOne(ctx, goal)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		goal.ID = oid
	}
	return nil
}

// Update replaces a stored goal by ID.
func (g *GoalRepository) Update(ctx context.Context, goal *models.Goal) error {
	res, err := g.repo.collection(goalsCollection).ReplaceOne(ctx, bson.M{"_id": goal.ID}, goal)
	if err != nil {
		return fmt.Errorf("update goal %s: %w", goal.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Get fetches a goal owned by the subject.
func (g *GoalRepository) Get(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	var goal models.Goal
	err := g.repo.collection(goalsCollection).
		FindOne(ctx, bson.M{"_id": id, "subject_id": subjectID}).
		Decode(&goal)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", id.Hex(), err)
	}
	return &goal, nil
}

// ListBySubject returns every goal for the subject, oldest first.
func (g *GoalRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Goal, error) {
	return g.list(ctx, bson.M{"subject_id": subjectID})
}

// ListActive returns the subject's goals with status active.
func (g *GoalRepository) ListActive(ctx context.Context, subjectID string) ([]models.Goal, error) {
	return g.list(ctx, bson.M{"subject_id": subjectID, "status": models.GoalActive})
}

func (g *GoalRepository) list(ctx context.Context, filter bson.M) ([]models.Goal, error) {
	cursor, err := g.repo.collection(goalsCollection).
		Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Goal
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	return out, nil
}

// StatisticsRepository persists per-subject snapshots keyed by subject ID.
type StatisticsRepository struct {
	repo *Repository
}

// Get fetches the subject's snapshot.
func (s *StatisticsRepository) Get(ctx context.Context, subjectID string) (*models.StatisticsSnapshot, error) {
	var snap models.StatisticsSnapshot
	err := s.repo.collection(statisticsCollection).
		FindOne(ctx, bson.M{"_id": subjectID}).
		Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get statistics %s: %w", subjectID, err)
	}
	return &snap, nil
}

// MarkStale raises the stale flag and bumps the staleness version, creating
// the snapshot row if needed. Idempotent with respect to the flag.
func (s *StatisticsRepository) MarkStale(ctx context.Context, subjectID string) error {
	_, err := s.repo.collection(statisticsCollection).UpdateOne(ctx,
		bson.M{"_id": subjectID},
		bson.M{
			"$set": bson.M{"stale": true},
			"$inc": bson.M{"stale_version": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mark statistics stale %s: %w", subjectID, err)
	}
	return nil
}

// Write upserts the aggregate fields. The stale flag is cleared in a second,
// conditional step so that a version bumped after the recalculation captured
// its data leaves the flag raised for the next sweep.
func (s *StatisticsRepository) Write(ctx context.Context, snap *models.StatisticsSnapshot) error {
	coll := s.repo.collection(statisticsCollection)

	fields := bson.M{
		"total_measurements": snap.TotalMeasurements,
		"first_date":         snap.FirstDate,
		"last_date":          snap.LastDate,
		"current_weight":     snap.CurrentWeight,
		"starting_weight":    snap.StartingWeight,
		"highest_weight":     snap.HighestWeight,
		"lowest_weight":      snap.LowestWeight,
		"average_adg":        snap.AverageADG,
		"best_adg":           snap.BestADG,
		"worst_adg":          snap.WorstADG,
		"week_adg":           snap.WeekADG,
		"month_adg":          snap.MonthADG,
		"last_calculated":    snap.LastCalculated,
	}

	if _, err := coll.UpdateOne(ctx,
		bson.M{"_id": snap.SubjectID},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("write statistics %s: %w", snap.SubjectID, err)
	}

	if _, err := coll.UpdateOne(ctx,
		bson.M{"_id": snap.SubjectID, "stale_version": snap.StaleVersion},
		bson.M{"$set": bson.M{"stale": false}},
	); err != nil {
		return fmt.Errorf("clear statistics staleness %s: %w", snap.SubjectID, err)
	}
	return nil
}

// ListStaleSubjects returns the subjects whose snapshots are flagged stale.
func (s *StatisticsRepository) ListStaleSubjects(ctx context.Context) ([]string, error) {
	cursor, err := s.repo.collection(statisticsCollection).Find(ctx, bson.M{"stale": true})
	if err != nil {
		return nil, fmt.Errorf("list stale statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var snaps []models.StatisticsSnapshot
	if err := cursor.All(ctx, &snaps); err != nil {
		return nil, fmt.Errorf("decode stale statistics: %w", err)
	}
	out := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.SubjectID)
	}
	return out, nil
}

// List returns every snapshot.
func (s *StatisticsRepository) List(ctx context.Context) ([]models.StatisticsSnapshot, error) {
	cursor, err := s.repo.collection(statisticsCollection).
		Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.StatisticsSnapshot
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	return out, nil
}

// AuditRepository persists ledger mutation records.
type AuditRepository struct {
	repo *Repository
}

// Insert appends an audit entry.
func (a *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	res, err := a.repo.collection(auditCollection).InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid
	}
	return nil
}

// PurgeOlderThan removes audit entries before the cutoff.
func (a *AuditRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.repo.collection(auditCollection).DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return res.DeletedCount, nil
}
