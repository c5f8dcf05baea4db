// Package goals maintains target-weight goals: creation, lifecycle actions,
// and the per-measurement refresh of progress, projection and achievement.
package goals

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/service/metrics"
)

// Tracker implements goal management over the goal store.
type Tracker struct {
	goals  repository.GoalStore
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker wires a new tracker instance.
func NewTracker(goals repository.GoalStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		goals:  goals,
		logger: logger,
		now:    time.Now,
	}
}

// CreateInput carries the user-supplied goal parameters.
type CreateInput struct {
	TargetWeight   float64           `json:"target_weight" binding:"required"`
	Unit           models.WeightUnit `json:"unit" binding:"required"`
	TargetDate     time.Time         `json:"target_date" binding:"required"`
	StartingWeight float64           `json:"starting_weight" binding:"required"`
	StartingDate   time.Time         `json:"starting_date" binding:"required"`
	TargetADG      *float64          `json:"target_adg,omitempty"`
	MinADG         *float64          `json:"min_adg,omitempty"`
	MaxADG         *float64          `json:"max_adg,omitempty"`
}

// Create validates and persists a new active goal for the subject.
func (t *Tracker) Create(ctx context.Context, subjectID string, in CreateInput) (*models.Goal, error) {
	now := t.now().UTC()
	goal := &models.Goal{
		SubjectID:      subjectID,
		TargetWeight:   in.TargetWeight,
		Unit:           in.Unit,
		TargetDate:     models.NormalizeDate(in.TargetDate),
		StartingWeight: in.StartingWeight,
		StartingDate:   models.NormalizeDate(in.StartingDate),
		TargetADG:      in.TargetADG,
		MinADG:         in.MinADG,
		MaxADG:         in.MaxADG,
		Status:         models.GoalActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := goal.Validate(); err != nil {
		return nil, err
	}

	if err := t.goals.Insert(ctx, goal); err != nil {
		return nil, fmt.Errorf("persist goal: %w", err)
	}

	t.logger.Info("goal created",
		zap.String("subject_id", subjectID),
		zap.String("goal_id", goal.ID.Hex()),
		zap.Float64("target_weight", goal.TargetWeight))
	return goal, nil
}

// OnNewMeasurement refreshes every active goal of the subject from the
// measurement. A goal whose arithmetic cannot be computed is skipped with a
// log line; the remaining goals still update.
func (t *Tracker) OnNewMeasurement(ctx context.Context, subjectID string, m *models.Measurement) error {
	active, err := t.goals.ListActive(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("list active goals for %s: %w", subjectID, err)
	}

	for i := range active {
		goal := active[i]
		if err := t.applyMeasurement(&goal, m); err != nil {
			t.logger.Warn("skipping goal update",
				zap.String("goal_id", goal.ID.Hex()),
				zap.Error(err))
			continue
		}
		if err := t.goals.Update(ctx, &goal); err != nil {
			t.logger.Warn("failed persisting goal update",
				zap.String("goal_id", goal.ID.Hex()),
				zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) applyMeasurement(goal *models.Goal, m *models.Measurement) error {
	denominator := goal.TargetWeight - goal.StartingWeight
	if denominator == 0 {
		// Rejected at creation time; a stored goal in this state is skipped.
		return fmt.Errorf("target equals starting weight")
	}

	now := t.now().UTC()
	today := models.NormalizeDate(now)

	current := m.Value
	goal.CurrentWeight = &current
	lastDate := m.Date
	goal.LastWeightDate = &lastDate

	// Numerator and denominator carry the same sign for on-track goals, so
	// progress rises toward 100 for gain and loss goals alike.
	progress := metrics.Round3((current - goal.StartingWeight) / denominator * 100)
	goal.ProgressPct = &progress

	daysRemaining := int(goal.TargetDate.Sub(today).Hours() / 24)
	if m.ADG != nil && daysRemaining > 0 {
		projected := metrics.Round3(current + *m.ADG*float64(daysRemaining))
		goal.ProjectedWeight = &projected
	} else {
		goal.ProjectedWeight = &current
	}

	if m.ADG != nil && *m.ADG != 0 {
		daysToTarget := (goal.TargetWeight - current) / *m.ADG
		projectedDate := today.AddDate(0, 0, int(math.Ceil(daysToTarget)))
		goal.ProjectedDate = &projectedDate
	} else {
		targetDate := goal.TargetDate
		goal.ProjectedDate = &targetDate
	}

	if goal.TargetCrossed(current) {
		goal.Status = models.GoalAchieved
		achieved := m.Date
		goal.AchievedDate = &achieved
		t.logger.Info("goal achieved",
			zap.String("goal_id", goal.ID.Hex()),
			zap.String("subject_id", goal.SubjectID),
			zap.Float64("weight", current))
	}

	goal.UpdatedAt = now
	return nil
}

// List returns every goal for the subject.
func (t *Tracker) List(ctx context.Context, subjectID string) ([]models.Goal, error) {
	return t.goals.ListBySubject(ctx, subjectID)
}

// Cancel transitions an active or paused goal to cancelled.
func (t *Tracker) Cancel(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	return t.transition(ctx, subjectID, id, models.GoalCancelled,
		models.GoalActive, models.GoalPaused)
}

// Pause transitions an active goal to paused.
func (t *Tracker) Pause(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	return t.transition(ctx, subjectID, id, models.GoalPaused, models.GoalActive)
}

// Resume transitions a paused goal back to active.
func (t *Tracker) Resume(ctx context.Context, subjectID string, id primitive.ObjectID) (*models.Goal, error) {
	return t.transition(ctx, subjectID, id, models.GoalActive, models.GoalPaused)
}

func (t *Tracker) transition(ctx context.Context, subjectID string, id primitive.ObjectID, to models.GoalStatus, from ...models.GoalStatus) (*models.Goal, error) {
	goal, err := t.goals.Get(ctx, subjectID, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, s := range from {
		if goal.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot move goal from %s to %s", models.ErrGoalNotActive, goal.Status, to)
	}

	goal.Status = to
	goal.UpdatedAt = t.now().UTC()
	if err := t.goals.Update(ctx, goal); err != nil {
		return nil, fmt.Errorf("persist goal transition: %w", err)
	}

	t.logger.Info("goal status changed",
		zap.String("goal_id", goal.ID.Hex()),
		zap.String("status", string(to)))
	return goal, nil
}
