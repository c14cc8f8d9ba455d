package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/errors"
)

// NewsNormalizer maps news articles (article_id, publication, headline,
// published_at) onto the canonical event shape. News has no engagement
// signal; the count stays 0.
type NewsNormalizer struct{}

var newsFields = map[string]struct{}{
	"article_id":      {},
	"publication":     {},
	"brand":           {},
	"parent_company":  {},
	"category":        {},
	"headline":        {},
	"body":            {},
	"url":             {},
	"published_at":    {},
	"sentiment_score": {},
	"source":          {},
	"ingested_at":     {},
}

func (NewsNormalizer) Source() model.Source { return model.SourceNews }

func (n NewsNormalizer) Normalize(raw map[string]json.RawMessage) (model.Event, error) {
	warnUnmapped(n.Source(), raw, newsFields)

	sourceID := decodeString(raw, "article_id")
	if sourceID == "" {
		return model.Event{}, fmt.Errorf("%w: news record missing article_id", errors.ErrSchema)
	}
	publishedAt, ok := decodeTime(raw, "published_at")
	if !ok {
		return model.Event{}, fmt.Errorf("%w: news record %s missing published_at", errors.ErrSchema, sourceID)
	}

	return model.Event{
		SourceID:       sourceID,
		Brand:          normalizeLabel(decodeString(raw, "brand")),
		ParentCompany:  normalizeLabel(decodeString(raw, "parent_company")),
		Category:       normalizeLabel(decodeString(raw, "category")),
		Headline:       decodeString(raw, "headline"),
		Body:           decodeString(raw, "body"),
		Author:         decodeString(raw, "publication"),
		URL:            decodeString(raw, "url"),
		PublishedAt:    publishedAt,
		SentimentScore: decodeFloat(raw, "sentiment_score"),
	}, nil
}
