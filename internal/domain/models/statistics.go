package models

import "time"

// StatisticsSnapshot is the denormalized per-subject rollup. Exactly one
// snapshot exists per subject (upsert semantics). Stale is raised synchronously
// on every ledger write and cleared only by a successful recalculation whose
// captured StaleVersion is still current.
type StatisticsSnapshot struct {
	SubjectID string `bson:"_id" json:"subject_id"`

	TotalMeasurements int        `bson:"total_measurements" json:"total_measurements"`
	FirstDate         *time.Time `bson:"first_date,omitempty" json:"first_date,omitempty"`
	LastDate          *time.Time `bson:"last_date,omitempty" json:"last_date,omitempty"`

	CurrentWeight  *float64 `bson:"current_weight,omitempty" json:"current_weight,omitempty"`
	StartingWeight *float64 `bson:"starting_weight,omitempty" json:"starting_weight,omitempty"`
	HighestWeight  *float64 `bson:"highest_weight,omitempty" json:"highest_weight,omitempty"`
	LowestWeight   *float64 `bson:"lowest_weight,omitempty" json:"lowest_weight,omitempty"`

	AverageADG *float64 `bson:"average_adg,omitempty" json:"average_adg,omitempty"`
	BestADG    *float64 `bson:"best_adg,omitempty" json:"best_adg,omitempty"`
	WorstADG   *float64 `bson:"worst_adg,omitempty" json:"worst_adg,omitempty"`
	WeekADG    *float64 `bson:"week_adg,omitempty" json:"week_adg,omitempty"`
	MonthADG   *float64 `bson:"month_adg,omitempty" json:"month_adg,omitempty"`

	Stale          bool       `bson:"stale" json:"stale"`
	StaleVersion   int64      `bson:"stale_version" json:"-"`
	LastCalculated *time.Time `bson:"last_calculated,omitempty" json:"last_calculated,omitempty"`
}
