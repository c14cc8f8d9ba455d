// Package model defines the canonical event shape and the derived aggregate
// rows produced by the pipeline.
package model

import "time"

// Source identifies the kind of provider an event originated from. The set
// is extensible; new provider kinds only need a normalizer registration.
type Source string

const (
	SourceSocial Source = "social"
	SourceNews   Source = "news"
)

// QualityFlag is the quality gate verdict for an event. Invalid events are
// persisted with their failing flag rather than dropped, so reprocessing and
// audits can see them; only VALID events feed the aggregates.
type QualityFlag string

const (
	FlagValid            QualityFlag = "VALID"
	FlagInvalidSentiment QualityFlag = "INVALID_SENTIMENT"
	FlagNullHeadline     QualityFlag = "NULL_HEADLINE"
	FlagFutureDate       QualityFlag = "FUTURE_DATE"
)

// Event is one content item (post or article) mentioning a brand, normalized
// from a source-specific schema.
//
// EventID is a deterministic digest of (SourceID, PublishedAt, Source); the
// same logical event always resolves to the same EventID regardless of which
// run computed it. PublishedAt is authoritative for ordering and
// watermarking; IngestedAt is used only to break ties during deduplication.
type Event struct {
	EventID         string      `json:"event_id"`
	SourceID        string      `json:"source_id"`
	Source          Source      `json:"source"`
	Brand           string      `json:"brand"`
	ParentCompany   string      `json:"parent_company"`
	Category        string      `json:"category"`
	Headline        string      `json:"headline"`
	Body            string      `json:"body"`
	Author          string      `json:"author,omitempty"`
	URL             string      `json:"url,omitempty"`
	PublishedAt     time.Time   `json:"published_at"`
	IngestedAt      time.Time   `json:"ingested_at"`
	EngagementCount int64       `json:"engagement_count"`
	SentimentScore  float64     `json:"sentiment_score"`
	QualityFlag     QualityFlag `json:"quality_flag"`
}

// SentimentDate returns the UTC calendar date the event belongs to in daily
// aggregates.
func (e Event) SentimentDate() time.Time {
	t := e.PublishedAt.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
