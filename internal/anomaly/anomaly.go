// Package anomaly flags daily aggregates whose average sentiment deviates
// from the brand's own historical distribution. The statistics are always
// recomputed over the brand's full history: a new observation shifts the
// brand's mean and stddev retroactively, so incremental aggregation does not
// imply incremental anomaly detection.
package anomaly

import (
	"math"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// DefaultZThreshold is the |z| cut-off above which a day is anomalous.
const DefaultZThreshold = 2.0

// Detector scores daily aggregates against per-brand population statistics.
type Detector struct {
	zThreshold float64
}

// New creates a Detector; a non-positive threshold falls back to the default.
func New(zThreshold float64) *Detector {
	if zThreshold <= 0 {
		zThreshold = DefaultZThreshold
	}
	return &Detector{zThreshold: zThreshold}
}

// Score recomputes the z-score and anomaly status of every row. The input
// must be each affected brand's complete daily history; scoring a partial
// history drifts the brand mean. Returns the updated rows and how many were
// flagged.
func (d *Detector) Score(rows []model.DailyBrandAggregate) ([]model.DailyBrandAggregate, int) {
	type stats struct {
		count float64
		sum   float64
		sumSq float64
	}
	byBrand := make(map[string]*stats)
	for _, r := range rows {
		s, ok := byBrand[r.Brand]
		if !ok {
			s = &stats{}
			byBrand[r.Brand] = s
		}
		s.count++
		s.sum += r.AvgSentiment
		s.sumSq += r.AvgSentiment * r.AvgSentiment
	}

	flagged := 0
	scored := make([]model.DailyBrandAggregate, len(rows))
	for i, r := range rows {
		s := byBrand[r.Brand]
		mean := s.sum / s.count
		variance := s.sumSq/s.count - mean*mean
		if variance < 0 {
			variance = 0
		}
		stddev := math.Sqrt(variance)

		// A single data point or a constant history has zero spread; the
		// z-score is defined as 0 there, never an anomaly.
		z := 0.0
		if stddev > 0 {
			z = (r.AvgSentiment - mean) / stddev
		}
		r.ZScore = z
		if math.Abs(z) > d.zThreshold {
			r.AnomalyStatus = model.AnomalyFlagged
			flagged++
		} else {
			r.AnomalyStatus = model.AnomalyNormal
		}
		scored[i] = r
	}
	return scored, flagged
}
