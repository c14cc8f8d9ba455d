// Package aggregate derives the per-(date, brand) statistics and the
// per-category competitive rankings from the validated event set. Both
// computations are pure and replace their output rows wholesale, so a rerun
// over a window already aggregated never double counts.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// Thresholds are the sentiment category cut-offs: score >= Positive is
// positive, score <= Negative is negative, everything between is neutral.
type Thresholds struct {
	Positive float64
	Negative float64
}

// DefaultThresholds mirrors the configured defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Positive: 0.3, Negative: -0.3}
}

type dailyKey struct {
	date  time.Time
	brand string
}

type dailyAccum struct {
	parent    string
	category  string
	count     int64
	sum       float64
	sumSq     float64
	min       float64
	max       float64
	positive  int64
	negative  int64
	neutral   int64
	engage    int64
	sources   map[model.Source]struct{}
}

// Daily computes one aggregate row per (sentiment date, brand) from the
// given events. Only VALID events contribute; flagged events are skipped
// here, not earlier, so the persisted store keeps them auditable.
func Daily(events []model.Event, th Thresholds) []model.DailyBrandAggregate {
	accums := make(map[dailyKey]*dailyAccum)
	for _, e := range events {
		if e.QualityFlag != model.FlagValid {
			continue
		}
		key := dailyKey{date: e.SentimentDate(), brand: e.Brand}
		acc, ok := accums[key]
		if !ok {
			acc = &dailyAccum{
				min:     e.SentimentScore,
				max:     e.SentimentScore,
				sources: make(map[model.Source]struct{}),
			}
			accums[key] = acc
		}
		if acc.parent == "" {
			acc.parent = e.ParentCompany
		}
		if acc.category == "" {
			acc.category = e.Category
		}
		acc.count++
		acc.sum += e.SentimentScore
		acc.sumSq += e.SentimentScore * e.SentimentScore
		if e.SentimentScore < acc.min {
			acc.min = e.SentimentScore
		}
		if e.SentimentScore > acc.max {
			acc.max = e.SentimentScore
		}
		switch {
		case e.SentimentScore >= th.Positive:
			acc.positive++
		case e.SentimentScore <= th.Negative:
			acc.negative++
		default:
			acc.neutral++
		}
		acc.engage += e.EngagementCount
		acc.sources[e.Source] = struct{}{}
	}

	rows := make([]model.DailyBrandAggregate, 0, len(accums))
	for key, acc := range accums {
		mean := acc.sum / float64(acc.count)
		variance := acc.sumSq/float64(acc.count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		rows = append(rows, model.DailyBrandAggregate{
			SentimentDate:   key.date,
			Brand:           key.brand,
			ParentCompany:   acc.parent,
			Category:        acc.category,
			ContentCount:    acc.count,
			AvgSentiment:    mean,
			MinSentiment:    acc.min,
			MaxSentiment:    acc.max,
			StddevSentiment: math.Sqrt(variance),
			PositiveCount:   acc.positive,
			NegativeCount:   acc.negative,
			NeutralCount:    acc.neutral,
			TotalEngagement: acc.engage,
			AvgEngagement:   float64(acc.engage) / float64(acc.count),
			DistinctSources: int64(len(acc.sources)),
			AnomalyStatus:   model.AnomalyNormal,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].SentimentDate.Equal(rows[j].SentimentDate) {
			return rows[i].SentimentDate.Before(rows[j].SentimentDate)
		}
		return rows[i].Brand < rows[j].Brand
	})
	return rows
}
