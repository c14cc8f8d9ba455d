package trend

import (
	"math"
	"sort"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// Config bounds the lookback window and the noise floor.
type Config struct {
	LookbackDays int
	MinMentions  int
}

// DefaultConfig mirrors the configured defaults: 30-day lookback, pairs with
// fewer than 3 mentions suppressed as noise.
func DefaultConfig() Config {
	return Config{LookbackDays: 30, MinMentions: 3}
}

// Scorer aggregates topic mentions per (brand, topic) and computes the
// composite trending score.
type Scorer struct {
	extractor *Extractor
	cfg       Config
}

// NewScorer creates a Scorer. Non-positive config values fall back to the
// defaults.
func NewScorer(extractor *Extractor, cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.MinMentions <= 0 {
		cfg.MinMentions = def.MinMentions
	}
	return &Scorer{extractor: extractor, cfg: cfg}
}

type pairKey struct {
	brand string
	topic string
}

type pairAccum struct {
	total     int64
	last7d    int64
	last14d   int64
	sum       float64
	engage    int64
	maxEngage int64
}

// Compute scans VALID events inside the lookback window ending at now and
// returns the scored (brand, topic) rows, highest score first.
func (s *Scorer) Compute(events []model.Event, now time.Time) []model.TrendTopicAggregate {
	windowStart := now.AddDate(0, 0, -s.cfg.LookbackDays)
	cut7d := now.AddDate(0, 0, -7)
	cut14d := now.AddDate(0, 0, -14)

	accums := make(map[pairKey]*pairAccum)
	for _, e := range events {
		if e.QualityFlag != model.FlagValid || e.Brand == "" {
			continue
		}
		if e.PublishedAt.Before(windowStart) || e.PublishedAt.After(now) {
			continue
		}
		for _, topic := range s.extractor.Topics(e) {
			key := pairKey{brand: e.Brand, topic: topic}
			acc, ok := accums[key]
			if !ok {
				acc = &pairAccum{}
				accums[key] = acc
			}
			acc.total++
			if !e.PublishedAt.Before(cut7d) {
				acc.last7d++
			}
			if !e.PublishedAt.Before(cut14d) {
				acc.last14d++
			}
			acc.sum += e.SentimentScore
			acc.engage += e.EngagementCount
			if e.EngagementCount > acc.maxEngage {
				acc.maxEngage = e.EngagementCount
			}
		}
	}

	rows := make([]model.TrendTopicAggregate, 0, len(accums))
	for key, acc := range accums {
		if acc.total < int64(s.cfg.MinMentions) {
			continue
		}
		avgEngagement := float64(acc.engage) / float64(acc.total)
		score := trendingScore(acc.last7d, acc.last14d, acc.total, avgEngagement)
		rows = append(rows, model.TrendTopicAggregate{
			Brand:         key.brand,
			Topic:         key.topic,
			MentionsTotal: acc.total,
			Mentions7d:    acc.last7d,
			Mentions14d:   acc.last14d,
			AvgSentiment:  acc.sum / float64(acc.total),
			AvgEngagement: avgEngagement,
			MaxEngagement: acc.maxEngage,
			TrendingScore: score,
			TrendStatus:   classify(score, acc.last7d, acc.last14d, acc.total),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TrendingScore != rows[j].TrendingScore {
			return rows[i].TrendingScore > rows[j].TrendingScore
		}
		if rows[i].Brand != rows[j].Brand {
			return rows[i].Brand < rows[j].Brand
		}
		return rows[i].Topic < rows[j].Topic
	})
	return rows
}

// trendingScore is the composite momentum signal:
//
//	(mentions_7d * 2 / mentions_14d) * log(mentions_total + 1) * (1 + avg_engagement/100)
//
// A pair with no mentions in the 14-day sub-window contributes 0 instead of
// dividing by zero.
func trendingScore(m7, m14, total int64, avgEngagement float64) float64 {
	if m14 == 0 {
		return 0
	}
	velocity := float64(m7) * 2 / float64(m14)
	return velocity * math.Log(float64(total)+1) * (1 + avgEngagement/100)
}

func classify(score float64, m7, m14, total int64) model.TrendStatus {
	switch {
	case score > 10 && float64(m7) > float64(m14)/2:
		return model.TrendHot
	case score > 5:
		return model.TrendTrending
	case total > 10:
		return model.TrendStable
	default:
		return model.TrendEmerging
	}
}
