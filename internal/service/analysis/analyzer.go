// Package analysis provides read-only statistics over a subject's ledger:
// z-score outlier detection and least-squares trend classification. Nothing
// here mutates ledger state, so it can run alongside the write path.
package analysis

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository"
	"github.com/showbarn/growthengine/internal/service/metrics"
)

// Any measurement more than three population standard deviations from the
// subject's mean is reported as an outlier.
const outlierZThreshold = 3.0

// Slopes within this band (units per day) classify as stable.
const slopeEpsilonPerDay = 0.01

// TrendDirection classifies the regression slope over the window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Outlier identifies a measurement flagged by the z-score check.
type Outlier struct {
	MeasurementID primitive.ObjectID `json:"measurement_id"`
	Value         float64            `json:"value"`
	ZScore        float64            `json:"z_score"`
}

// TrendResult is the outcome of a windowed regression. SlopePerDay and
// RSquared are nil when fewer than two points fall inside the window.
type TrendResult struct {
	Direction   TrendDirection `json:"direction"`
	SlopePerDay *float64       `json:"slope_per_day,omitempty"`
	RSquared    *float64       `json:"r_squared,omitempty"`
	Samples     int            `json:"samples"`
}

// Analyzer runs outlier and trend computations against the ledger.
type Analyzer struct {
	measurements repository.MeasurementStore
	logger       *zap.Logger
}

// NewAnalyzer wires a new analyzer instance.
func NewAnalyzer(measurements repository.MeasurementStore, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		measurements: measurements,
		logger:       logger,
	}
}

// DetectOutliers flags active measurements whose |z-score| exceeds 3. With one
// distinct value or fewer the standard deviation is zero and no outliers are
// reported.
func (a *Analyzer) DetectOutliers(ctx context.Context, subjectID string) ([]Outlier, error) {
	chain, err := a.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load measurements for %s: %w", subjectID, err)
	}
	if len(chain) < 2 {
		return nil, nil
	}

	values := make(stats.Float64Data, len(chain))
	for i, m := range chain {
		values[i] = m.Value
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil, fmt.Errorf("mean for %s: %w", subjectID, err)
	}
	stddev, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return nil, fmt.Errorf("stddev for %s: %w", subjectID, err)
	}
	if stddev == 0 {
		return nil, nil
	}

	var out []Outlier
	for _, m := range chain {
		z := (m.Value - mean) / stddev
		if z > outlierZThreshold || z < -outlierZThreshold {
			out = append(out, Outlier{MeasurementID: m.ID, Value: m.Value, ZScore: metrics.Round3(z)})
		}
	}

	a.logger.Debug("outlier scan complete",
		zap.String("subject_id", subjectID),
		zap.Int("samples", len(chain)),
		zap.Int("flagged", len(out)))
	return out, nil
}

// Trend regresses value against elapsed seconds over the most recent
// windowDays of active measurements. Fewer than two points inside the window
// yields a stable direction with nil slope rather than an error.
func (a *Analyzer) Trend(ctx context.Context, subjectID string, windowDays int) (TrendResult, error) {
	if windowDays <= 0 {
		return TrendResult{}, fmt.Errorf("%w: window_days must be positive", models.ErrValidation)
	}

	chain, err := a.measurements.ListActive(ctx, subjectID)
	if err != nil {
		return TrendResult{}, fmt.Errorf("load measurements for %s: %w", subjectID, err)
	}
	if len(chain) == 0 {
		return TrendResult{Direction: TrendStable}, nil
	}

	// Window anchored at the newest active measurement, not the wall clock,
	// so a dormant subject still reports the trend of its last stretch.
	anchor := chain[len(chain)-1].Timestamp()
	cutoff := anchor.AddDate(0, 0, -windowDays)

	var window []models.Measurement
	for _, m := range chain {
		if !m.Timestamp().Before(cutoff) {
			window = append(window, m)
		}
	}
	if len(window) < 2 {
		return TrendResult{Direction: TrendStable, Samples: len(window)}, nil
	}

	origin := window[0].Timestamp()
	xs := make(stats.Float64Data, len(window))
	ys := make(stats.Float64Data, len(window))
	for i, m := range window {
		xs[i] = m.Timestamp().Sub(origin).Seconds()
		ys[i] = m.Value
	}

	varX, err := stats.Variance(xs)
	if err != nil {
		return TrendResult{}, fmt.Errorf("variance for %s: %w", subjectID, err)
	}
	if varX == 0 {
		// All points share a timestamp; no slope is defined.
		return TrendResult{Direction: TrendStable, Samples: len(window)}, nil
	}
	covXY, err := stats.CovariancePopulation(xs, ys)
	if err != nil {
		return TrendResult{}, fmt.Errorf("covariance for %s: %w", subjectID, err)
	}

	slopePerDay := covXY / varX * 86400

	var rSquared *float64
	if r, err := stats.Correlation(xs, ys); err == nil {
		rsq := metrics.Round3(r * r)
		rSquared = &rsq
	}

	direction := TrendStable
	switch {
	case slopePerDay > slopeEpsilonPerDay:
		direction = TrendIncreasing
	case slopePerDay < -slopeEpsilonPerDay:
		direction = TrendDecreasing
	}

	rounded := metrics.Round3(slopePerDay)
	return TrendResult{
		Direction:   direction,
		SlopePerDay: &rounded,
		RSquared:    rSquared,
		Samples:     len(window),
	}, nil
}
