package aggregate

import (
	"sort"

	"github.com/brandintel/sentiment-platform/internal/model"
)

type competitiveAccum struct {
	parent   string
	mentions int64
	sum      float64
}

// Competitive derives per-category brand rankings from the validated event
// set: share of voice (mention share within the category) and sentiment rank
// against category peers.
func Competitive(events []model.Event) []model.CompetitiveRanking {
	byCategory := make(map[string]map[string]*competitiveAccum)
	for _, e := range events {
		if e.QualityFlag != model.FlagValid || e.Brand == "" {
			continue
		}
		brands, ok := byCategory[e.Category]
		if !ok {
			brands = make(map[string]*competitiveAccum)
			byCategory[e.Category] = brands
		}
		acc, ok := brands[e.Brand]
		if !ok {
			acc = &competitiveAccum{parent: e.ParentCompany}
			brands[e.Brand] = acc
		}
		acc.mentions++
		acc.sum += e.SentimentScore
	}

	var rows []model.CompetitiveRanking
	for category, brands := range byCategory {
		var total int64
		for _, acc := range brands {
			total += acc.mentions
		}

		group := make([]model.CompetitiveRanking, 0, len(brands))
		for brand, acc := range brands {
			group = append(group, model.CompetitiveRanking{
				Category:        category,
				Brand:           brand,
				ParentCompany:   acc.parent,
				MentionCount:    acc.mentions,
				ShareOfVoicePct: float64(acc.mentions) / float64(total) * 100,
				AvgSentiment:    acc.sum / float64(acc.mentions),
			})
		}

		// Rank by sentiment, ties broken by brand name for determinism.
		sort.Slice(group, func(i, j int) bool {
			if group[i].AvgSentiment != group[j].AvgSentiment {
				return group[i].AvgSentiment > group[j].AvgSentiment
			}
			return group[i].Brand < group[j].Brand
		})
		for i := range group {
			group[i].SentimentRank = i + 1
		}

		sort.Slice(group, func(i, j int) bool {
			if group[i].MentionCount != group[j].MentionCount {
				return group[i].MentionCount > group[j].MentionCount
			}
			return group[i].Brand < group[j].Brand
		})
		for i := range group {
			group[i].ShareRank = i + 1
		}

		rows = append(rows, group...)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].ShareRank < rows[j].ShareRank
	})
	return rows
}
