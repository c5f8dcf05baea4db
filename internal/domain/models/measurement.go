package models

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WeightUnit enumerates the supported measurement units. Records keep the unit
// they were captured with; the engine never converts between units.
type WeightUnit string

const (
	UnitPound    WeightUnit = "pound"
	UnitKilogram WeightUnit = "kilogram"
)

// Sanity ranges per unit. Values outside these bounds are rejected at ingestion.
const (
	MinPounds    = 1.0
	MaxPounds    = 5000.0
	MinKilograms = 0.5
	MaxKilograms = 2500.0
)

// MeasurementMethod enumerates how a weight observation was taken.
type MeasurementMethod string

const (
	MethodDigitalScale    MeasurementMethod = "digital_scale"
	MethodMechanicalScale MeasurementMethod = "mechanical_scale"
	MethodTapeMeasure     MeasurementMethod = "tape_measure"
	MethodVisualEstimate  MeasurementMethod = "visual_estimate"
	MethodVeterinary      MeasurementMethod = "veterinary"
	MethodShowOfficial    MeasurementMethod = "show_official"
)

// MeasurementStatus is the lifecycle state of a ledger entry. Entries are never
// physically removed; "deleted" preserves audit history.
type MeasurementStatus string

const (
	StatusActive   MeasurementStatus = "active"
	StatusDeleted  MeasurementStatus = "deleted"
	StatusFlagged  MeasurementStatus = "flagged"
	StatusAdjusted MeasurementStatus = "adjusted"
)

// Measurement is a single weight observation in the append-only ledger.
//
// Chain ordering within a subject is (Date, TimeOfDay with missing values last,
// Seq). Seq is the store's insertion counter and breaks ties between entries on
// the same date with no time-of-day; this is a policy choice, not a product
// invariant.
type Measurement struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SubjectID string             `bson:"subject_id" json:"subject_id"`
	Value     float64            `bson:"value" json:"value"`
	Unit      WeightUnit         `bson:"unit" json:"unit"`
	Date      time.Time          `bson:"date" json:"date"`
	TimeOfDay *string            `bson:"time_of_day,omitempty" json:"time_of_day,omitempty"`
	Method    MeasurementMethod  `bson:"method" json:"method"`

	FeedingStatus  string `bson:"feeding_status,omitempty" json:"feeding_status,omitempty"`
	WateringStatus string `bson:"watering_status,omitempty" json:"watering_status,omitempty"`
	Confidence     *int   `bson:"confidence,omitempty" json:"confidence,omitempty"`
	ShowContext    string `bson:"show_context,omitempty" json:"show_context,omitempty"`

	Status MeasurementStatus `bson:"status" json:"status"`
	Seq    int64             `bson:"seq" json:"seq"`

	// Derived fields, nil for the first active measurement of a subject.
	DaysSincePrevious *int     `bson:"days_since_previous,omitempty" json:"days_since_previous,omitempty"`
	WeightChange      *float64 `bson:"weight_change,omitempty" json:"weight_change,omitempty"`
	ADG               *float64 `bson:"adg,omitempty" json:"adg,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ChainBefore reports whether m sorts before other in the subject's chain.
func (m *Measurement) ChainBefore(other *Measurement) bool {
	if !m.Date.Equal(other.Date) {
		return m.Date.Before(other.Date)
	}
	// Same date: entries with a time-of-day sort before those without.
	switch {
	case m.TimeOfDay != nil && other.TimeOfDay == nil:
		return true
	case m.TimeOfDay == nil && other.TimeOfDay != nil:
		return false
	case m.TimeOfDay != nil && other.TimeOfDay != nil && *m.TimeOfDay != *other.TimeOfDay:
		return *m.TimeOfDay < *other.TimeOfDay
	}
	return m.Seq < other.Seq
}

// SameSlot reports whether m occupies the same (date, time-of-day) slot as the
// given values. At most one active measurement may exist per slot per subject.
func (m *Measurement) SameSlot(date time.Time, timeOfDay *string) bool {
	if !m.Date.Equal(date) {
		return false
	}
	if (m.TimeOfDay == nil) != (timeOfDay == nil) {
		return false
	}
	return m.TimeOfDay == nil || *m.TimeOfDay == *timeOfDay
}

// Timestamp combines the calendar date with the optional time-of-day. Entries
// without a time-of-day resolve to midnight.
func (m *Measurement) Timestamp() time.Time {
	if m.TimeOfDay == nil {
		return m.Date
	}
	t, err := time.Parse("15:04", *m.TimeOfDay)
	if err != nil {
		return m.Date
	}
	return m.Date.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// ValidateWeight checks a value against the sanity range for its unit.
func ValidateWeight(value float64, unit WeightUnit) error {
	switch unit {
	case UnitPound:
		if value < MinPounds || value > MaxPounds {
			return fmt.Errorf("%w: value %.2f outside range %.0f-%.0f %s", ErrValidation, value, MinPounds, MaxPounds, unit)
		}
	case UnitKilogram:
		if value < MinKilograms || value > MaxKilograms {
			return fmt.Errorf("%w: value %.2f outside range %.1f-%.0f %s", ErrValidation, value, MinKilograms, MaxKilograms, unit)
		}
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrValidation, unit)
	}
	return nil
}

// ValidMethod reports whether the method is one of the supported enumerations.
func ValidMethod(method MeasurementMethod) bool {
	switch method {
	case MethodDigitalScale, MethodMechanicalScale, MethodTapeMeasure,
		MethodVisualEstimate, MethodVeterinary, MethodShowOfficial:
		return true
	}
	return false
}

// SortChain orders measurements by (date, time-of-day with missing values
// last, insertion sequence). Both store implementations sort through this
// helper so the chain comparator has a single source.
func SortChain(ms []Measurement) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].ChainBefore(&ms[j])
	})
}

// NormalizeDate truncates a timestamp to its UTC calendar date.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
