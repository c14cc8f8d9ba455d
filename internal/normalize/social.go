package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/errors"
)

// SocialNormalizer maps social posts (reddit-style schema: post_id, title,
// upvotes, created_at) onto the canonical event shape.
type SocialNormalizer struct{}

var socialFields = map[string]struct{}{
	"post_id":         {},
	"author":          {},
	"brand":           {},
	"parent_company":  {},
	"category":        {},
	"title":           {},
	"body":            {},
	"upvotes":         {},
	"comments_count":  {},
	"created_at":      {},
	"sentiment_score": {},
	"source":          {},
	"ingested_at":     {},
}

func (SocialNormalizer) Source() model.Source { return model.SourceSocial }

func (n SocialNormalizer) Normalize(raw map[string]json.RawMessage) (model.Event, error) {
	warnUnmapped(n.Source(), raw, socialFields)

	sourceID := decodeString(raw, "post_id")
	if sourceID == "" {
		return model.Event{}, fmt.Errorf("%w: social record missing post_id", errors.ErrSchema)
	}
	publishedAt, ok := decodeTime(raw, "created_at")
	if !ok {
		return model.Event{}, fmt.Errorf("%w: social record %s missing created_at", errors.ErrSchema, sourceID)
	}

	return model.Event{
		SourceID:        sourceID,
		Brand:           normalizeLabel(decodeString(raw, "brand")),
		ParentCompany:   normalizeLabel(decodeString(raw, "parent_company")),
		Category:        normalizeLabel(decodeString(raw, "category")),
		Headline:        decodeString(raw, "title"),
		Body:            decodeString(raw, "body"),
		Author:          decodeString(raw, "author"),
		PublishedAt:     publishedAt,
		EngagementCount: decodeInt(raw, "upvotes"),
		SentimentScore:  decodeFloat(raw, "sentiment_score"),
	}, nil
}
