// Package quality implements the validation pass that tags events with a
// quality flag. Events are never dropped here; exclusion of invalid events
// happens downstream at the aggregation boundary, which keeps bad input
// auditable in the persisted store.
package quality

import (
	"strings"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// Flag assigns exactly one quality flag to the event, first match wins:
// sentiment out of range, then missing headline, then a published timestamp
// in the future relative to now.
func Flag(e model.Event, now time.Time) model.QualityFlag {
	if e.SentimentScore < -1 || e.SentimentScore > 1 {
		return model.FlagInvalidSentiment
	}
	if strings.TrimSpace(e.Headline) == "" {
		return model.FlagNullHeadline
	}
	if e.PublishedAt.After(now) {
		return model.FlagFutureDate
	}
	return model.FlagValid
}
