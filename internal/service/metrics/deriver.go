// Package metrics derives per-measurement growth figures: days since the
// previous active measurement, weight change and average daily gain (ADG).
package metrics

import (
	"math"

	"github.com/showbarn/growthengine/internal/domain/models"
)

// Enrich computes the derived fields of m relative to the chronologically
// preceding active measurement. A nil prev marks m as the subject's baseline:
// all derived fields become nil. ADG stays nil when the calendar-day gap is
// zero; the division is skipped, not an error.
func Enrich(prev, m *models.Measurement) {
	if prev == nil {
		m.DaysSincePrevious = nil
		m.WeightChange = nil
		m.ADG = nil
		return
	}

	days := calendarDays(prev, m)
	change := m.Value - prev.Value

	m.DaysSincePrevious = &days
	m.WeightChange = &change
	if days > 0 {
		adg := Round3(change / float64(days))
		m.ADG = &adg
	} else {
		m.ADG = nil
	}
}

// RederiveChain recomputes the derived fields for an entire subject chain in
// order. The input must be sorted in chain order (the stores guarantee this).
// It returns the indexes whose derived fields changed, so callers persist only
// what moved. Recomputation over an unchanged chain is idempotent.
func RederiveChain(chain []models.Measurement) []int {
	var changed []int
	for i := range chain {
		before := chain[i]
		if i == 0 {
			Enrich(nil, &chain[i])
		} else {
			Enrich(&chain[i-1], &chain[i])
		}
		if !derivedEqual(&before, &chain[i]) {
			changed = append(changed, i)
		}
	}
	return changed
}

// Round3 rounds to three decimal places, the precision ADG is stored at.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func calendarDays(prev, m *models.Measurement) int {
	return int(m.Date.Sub(prev.Date).Hours() / 24)
}

func derivedEqual(a, b *models.Measurement) bool {
	return intPtrEqual(a.DaysSincePrevious, b.DaysSincePrevious) &&
		floatPtrEqual(a.WeightChange, b.WeightChange) &&
		floatPtrEqual(a.ADG, b.ADG)
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
