package model

import "time"

// AnomalyStatus flags a daily aggregate whose average sentiment deviates
// from the brand's own history.
type AnomalyStatus string

const (
	AnomalyNormal  AnomalyStatus = "NORMAL"
	AnomalyFlagged AnomalyStatus = "ANOMALY"
)

// DailyBrandAggregate is one row per (sentiment date, brand), recomputed in
// full for every date inside the incremental window. Counts and sums cover
// exactly the VALID events for the key; reruns replace the row entirely.
type DailyBrandAggregate struct {
	SentimentDate   time.Time     `json:"sentiment_date"`
	Brand           string        `json:"brand"`
	ParentCompany   string        `json:"parent_company"`
	Category        string        `json:"category"`
	ContentCount    int64         `json:"content_count"`
	AvgSentiment    float64       `json:"avg_sentiment"`
	MinSentiment    float64       `json:"min_sentiment"`
	MaxSentiment    float64       `json:"max_sentiment"`
	StddevSentiment float64       `json:"stddev_sentiment"`
	PositiveCount   int64         `json:"positive_count"`
	NegativeCount   int64         `json:"negative_count"`
	NeutralCount    int64         `json:"neutral_count"`
	TotalEngagement int64         `json:"total_engagement"`
	AvgEngagement   float64       `json:"avg_engagement"`
	DistinctSources int64         `json:"distinct_sources"`
	ZScore          float64       `json:"z_score"`
	AnomalyStatus   AnomalyStatus `json:"anomaly_status"`
}

// CompetitiveRanking is one row per (category, brand) over the trend
// lookback window: how loud a brand is within its category and how its
// sentiment compares to category peers.
type CompetitiveRanking struct {
	Category        string  `json:"category"`
	Brand           string  `json:"brand"`
	ParentCompany   string  `json:"parent_company"`
	MentionCount    int64   `json:"mention_count"`
	ShareOfVoicePct float64 `json:"share_of_voice_pct"`
	AvgSentiment    float64 `json:"avg_sentiment"`
	SentimentRank   int     `json:"sentiment_rank"`
	ShareRank       int     `json:"share_rank"`
}
