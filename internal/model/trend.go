package model

// TrendStatus classifies how actively a (brand, topic) pair is being
// discussed within the lookback window.
type TrendStatus string

const (
	TrendHot      TrendStatus = "HOT"
	TrendTrending TrendStatus = "TRENDING"
	TrendStable   TrendStatus = "STABLE"
	TrendEmerging TrendStatus = "EMERGING"
)

// TrendTopicAggregate is one row per (brand, topic) over the rolling
// lookback window. It is recomputed in full each run because the window
// slides continuously.
type TrendTopicAggregate struct {
	Brand         string      `json:"brand"`
	Topic         string      `json:"topic"`
	MentionsTotal int64       `json:"mentions_total"`
	Mentions7d    int64       `json:"mentions_7d"`
	Mentions14d   int64       `json:"mentions_14d"`
	AvgSentiment  float64     `json:"avg_sentiment"`
	AvgEngagement float64     `json:"avg_engagement"`
	MaxEngagement int64       `json:"max_engagement"`
	TrendingScore float64     `json:"trending_score"`
	TrendStatus   TrendStatus `json:"trend_status"`
}
