package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GoalStatus enumerates the lifecycle states of a target-weight goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalAchieved  GoalStatus = "achieved"
	GoalMissed    GoalStatus = "missed"
	GoalCancelled GoalStatus = "cancelled"
	GoalPaused    GoalStatus = "paused"
)

// Goal is a target-weight objective for a subject. Direction (gain or loss) is
// implied by the sign of target minus starting weight; the two must differ.
type Goal struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SubjectID string             `bson:"subject_id" json:"subject_id"`

	TargetWeight   float64    `bson:"target_weight" json:"target_weight"`
	Unit           WeightUnit `bson:"unit" json:"unit"`
	TargetDate     time.Time  `bson:"target_date" json:"target_date"`
	StartingWeight float64    `bson:"starting_weight" json:"starting_weight"`
	StartingDate   time.Time  `bson:"starting_date" json:"starting_date"`

	TargetADG *float64 `bson:"target_adg,omitempty" json:"target_adg,omitempty"`
	MinADG    *float64 `bson:"min_adg,omitempty" json:"min_adg,omitempty"`
	MaxADG    *float64 `bson:"max_adg,omitempty" json:"max_adg,omitempty"`

	// Denormalized from the latest ledger state.
	CurrentWeight  *float64   `bson:"current_weight,omitempty" json:"current_weight,omitempty"`
	LastWeightDate *time.Time `bson:"last_weight_date,omitempty" json:"last_weight_date,omitempty"`

	ProgressPct     *float64   `bson:"progress_pct,omitempty" json:"progress_pct,omitempty"`
	ProjectedWeight *float64   `bson:"projected_weight,omitempty" json:"projected_weight,omitempty"`
	ProjectedDate   *time.Time `bson:"projected_date,omitempty" json:"projected_date,omitempty"`

	Status           GoalStatus `bson:"status" json:"status"`
	AchievedDate     *time.Time `bson:"achieved_date,omitempty" json:"achieved_date,omitempty"`
	AchievementNotes string     `bson:"achievement_notes,omitempty" json:"achievement_notes,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsGain reports whether the goal aims at weight gain.
func (g *Goal) IsGain() bool {
	return g.TargetWeight >= g.StartingWeight
}

// TargetCrossed reports whether the given weight reaches the target in the
// goal's direction.
func (g *Goal) TargetCrossed(current float64) bool {
	if g.IsGain() {
		return current >= g.TargetWeight
	}
	return current <= g.TargetWeight
}

// Validate checks goal parameters at creation time.
func (g *Goal) Validate() error {
	if err := ValidateWeight(g.TargetWeight, g.Unit); err != nil {
		return err
	}
	if err := ValidateWeight(g.StartingWeight, g.Unit); err != nil {
		return err
	}
	if g.TargetWeight == g.StartingWeight {
		return fmt.Errorf("%w: target weight must differ from starting weight", ErrValidation)
	}
	if !g.TargetDate.After(g.StartingDate) {
		return fmt.Errorf("%w: target date must be after starting date", ErrValidation)
	}
	return nil
}
