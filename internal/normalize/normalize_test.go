package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
	pkgerrors "github.com/brandintel/sentiment-platform/pkg/errors"
)

func TestNormalizeSocialPost(t *testing.T) {
	payload := []byte(`{
		"post_id": "reddit_00042",
		"author": "user_1234",
		"brand": "  coca-cola ",
		"parent_company": "the coca-cola company",
		"category": "beverages",
		"title": "New flavor just dropped",
		"body": "Discussion about the launch",
		"upvotes": 321,
		"comments_count": 12,
		"created_at": "2024-01-15T08:30:00Z",
		"sentiment_score": 0.62
	}`)

	event, err := DefaultRegistry().Normalize(model.SourceSocial, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.SourceID != "reddit_00042" {
		t.Errorf("source_id = %q", event.SourceID)
	}
	if event.Source != model.SourceSocial {
		t.Errorf("source = %q", event.Source)
	}
	if event.Brand != "COCA-COLA" {
		t.Errorf("brand not normalized: %q", event.Brand)
	}
	if event.ParentCompany != "THE COCA-COLA COMPANY" {
		t.Errorf("parent company not normalized: %q", event.ParentCompany)
	}
	if event.EngagementCount != 321 {
		t.Errorf("engagement = %d", event.EngagementCount)
	}
	want := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	if !event.PublishedAt.Equal(want) {
		t.Errorf("published_at = %v, want %v", event.PublishedAt, want)
	}
	if event.SentimentScore != 0.62 {
		t.Errorf("sentiment = %v", event.SentimentScore)
	}
}

func TestNormalizeNewsArticle(t *testing.T) {
	payload := []byte(`{
		"article_id": "news_00007",
		"publication": "Reuters",
		"brand": "pepsico",
		"headline": "PepsiCo announces recall",
		"body": "Article content",
		"url": "https://example.com/article-7",
		"published_at": "2024-02-01T00:00:00Z",
		"sentiment_score": -0.4
	}`)

	event, err := DefaultRegistry().Normalize(model.SourceNews, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Source != model.SourceNews {
		t.Errorf("source = %q", event.Source)
	}
	if event.Author != "Reuters" {
		t.Errorf("publication mapped to %q", event.Author)
	}
	if event.EngagementCount != 0 {
		t.Errorf("news events carry no engagement, got %d", event.EngagementCount)
	}
	if event.URL != "https://example.com/article-7" {
		t.Errorf("url = %q", event.URL)
	}
}

func TestNormalizeRejectsMissingMandatoryFields(t *testing.T) {
	tests := []struct {
		name    string
		source  model.Source
		payload string
	}{
		{"social missing post_id", model.SourceSocial, `{"created_at":"2024-01-01T00:00:00Z","title":"x"}`},
		{"social missing created_at", model.SourceSocial, `{"post_id":"p1","title":"x"}`},
		{"social unparseable created_at", model.SourceSocial, `{"post_id":"p1","created_at":"not a time"}`},
		{"news missing article_id", model.SourceNews, `{"published_at":"2024-01-01T00:00:00Z"}`},
		{"news missing published_at", model.SourceNews, `{"article_id":"a1"}`},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Normalize(tt.source, []byte(tt.payload))
			if err == nil {
				t.Fatal("expected schema error")
			}
			if !errors.Is(err, pkgerrors.ErrSchema) {
				t.Errorf("expected ErrSchema, got %v", err)
			}
		})
	}
}

func TestNormalizeUnknownSource(t *testing.T) {
	_, err := DefaultRegistry().Normalize(model.Source("podcast"), []byte(`{}`))
	if !errors.Is(err, pkgerrors.ErrSchema) {
		t.Errorf("expected ErrSchema for unregistered source, got %v", err)
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	_, err := DefaultRegistry().Normalize(model.SourceSocial, []byte(`{not json`))
	if !errors.Is(err, pkgerrors.ErrSchema) {
		t.Errorf("expected ErrSchema for malformed payload, got %v", err)
	}
}

func TestNormalizeDropsUnmappedFieldsWithoutError(t *testing.T) {
	payload := []byte(`{
		"post_id": "p1",
		"created_at": "2024-01-01T00:00:00Z",
		"title": "x",
		"flair": "meme",
		"awards": 3
	}`)
	event, err := DefaultRegistry().Normalize(model.SourceSocial, payload)
	if err != nil {
		t.Fatalf("unmapped extras must not be fatal: %v", err)
	}
	if event.SourceID != "p1" {
		t.Errorf("source_id = %q", event.SourceID)
	}
}

func TestNormalizeTimestampLayouts(t *testing.T) {
	layouts := []string{
		"2024-01-15T08:30:00Z",
		"2024-01-15T08:30:00.123456",
		"2024-01-15T08:30:00",
		"2024-01-15 08:30:00",
		"2024-01-15",
	}
	reg := DefaultRegistry()
	for _, ts := range layouts {
		t.Run(ts, func(t *testing.T) {
			payload := []byte(`{"post_id":"p1","created_at":"` + ts + `"}`)
			event, err := reg.Normalize(model.SourceSocial, payload)
			if err != nil {
				t.Fatalf("layout %q rejected: %v", ts, err)
			}
			if event.PublishedAt.IsZero() {
				t.Errorf("layout %q produced zero time", ts)
			}
		})
	}
}

func TestNegativeEngagementClampedToZero(t *testing.T) {
	payload := []byte(`{"post_id":"p1","created_at":"2024-01-01T00:00:00Z","upvotes":-5}`)
	event, err := DefaultRegistry().Normalize(model.SourceSocial, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EngagementCount != 0 {
		t.Errorf("engagement must be non-negative, got %d", event.EngagementCount)
	}
}
