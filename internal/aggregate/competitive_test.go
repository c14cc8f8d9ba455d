package aggregate

import (
	"math"
	"testing"

	"github.com/brandintel/sentiment-platform/internal/model"
)

func categoryEvent(category, brand string, score float64) model.Event {
	return model.Event{
		Category:       category,
		Brand:          brand,
		ParentCompany:  "ACME HOLDINGS",
		PublishedAt:    ts(1, 0),
		SentimentScore: score,
		QualityFlag:    model.FlagValid,
	}
}

func TestCompetitiveShareOfVoice(t *testing.T) {
	events := []model.Event{
		categoryEvent("Soda", "COCA-COLA", 0.5),
		categoryEvent("Soda", "COCA-COLA", 0.5),
		categoryEvent("Soda", "COCA-COLA", 0.5),
		categoryEvent("Soda", "PEPSI", 0.1),
	}

	rows := Competitive(events)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	coke := rows[0]
	if coke.Brand != "COCA-COLA" {
		t.Fatalf("loudest brand first, got %s", coke.Brand)
	}
	if math.Abs(coke.ShareOfVoicePct-75) > 1e-9 {
		t.Errorf("share_of_voice_pct = %v, want 75", coke.ShareOfVoicePct)
	}
	if math.Abs(rows[1].ShareOfVoicePct-25) > 1e-9 {
		t.Errorf("share_of_voice_pct = %v, want 25", rows[1].ShareOfVoicePct)
	}
}

// Share of voice is computed within a category, never across categories.
func TestCompetitiveShareIsPerCategory(t *testing.T) {
	events := []model.Event{
		categoryEvent("Soda", "COCA-COLA", 0.5),
		categoryEvent("Snacks", "LAYS", 0.2),
	}

	for _, r := range Competitive(events) {
		if math.Abs(r.ShareOfVoicePct-100) > 1e-9 {
			t.Errorf("%s/%s share = %v, want 100 (sole brand in category)",
				r.Category, r.Brand, r.ShareOfVoicePct)
		}
		if r.SentimentRank != 1 || r.ShareRank != 1 {
			t.Errorf("%s/%s ranks = %d/%d, want 1/1", r.Category, r.Brand, r.SentimentRank, r.ShareRank)
		}
	}
}

func TestCompetitiveRanks(t *testing.T) {
	// FANTA: loudest but worst sentiment. SPRITE: quietest but best.
	events := []model.Event{
		categoryEvent("Soda", "FANTA", -0.4),
		categoryEvent("Soda", "FANTA", -0.2),
		categoryEvent("Soda", "FANTA", -0.3),
		categoryEvent("Soda", "COCA-COLA", 0.2),
		categoryEvent("Soda", "COCA-COLA", 0.2),
		categoryEvent("Soda", "SPRITE", 0.6),
	}

	byBrand := make(map[string]model.CompetitiveRanking)
	for _, r := range Competitive(events) {
		byBrand[r.Brand] = r
	}
	tests := []struct {
		brand         string
		sentimentRank int
		shareRank     int
	}{
		{"SPRITE", 1, 3},
		{"COCA-COLA", 2, 2},
		{"FANTA", 3, 1},
	}
	for _, tt := range tests {
		got := byBrand[tt.brand]
		if got.SentimentRank != tt.sentimentRank || got.ShareRank != tt.shareRank {
			t.Errorf("%s ranks = sentiment %d / share %d, want %d/%d",
				tt.brand, got.SentimentRank, got.ShareRank, tt.sentimentRank, tt.shareRank)
		}
	}
}

func TestCompetitiveTiesBreakByBrandName(t *testing.T) {
	events := []model.Event{
		categoryEvent("Soda", "B", 0.5),
		categoryEvent("Soda", "A", 0.5),
	}

	byBrand := make(map[string]model.CompetitiveRanking)
	for _, r := range Competitive(events) {
		byBrand[r.Brand] = r
	}
	if byBrand["A"].SentimentRank != 1 || byBrand["B"].SentimentRank != 2 {
		t.Errorf("tied sentiment must rank alphabetically: A=%d B=%d",
			byBrand["A"].SentimentRank, byBrand["B"].SentimentRank)
	}
	if byBrand["A"].ShareRank != 1 || byBrand["B"].ShareRank != 2 {
		t.Errorf("tied mentions must rank alphabetically: A=%d B=%d",
			byBrand["A"].ShareRank, byBrand["B"].ShareRank)
	}
}

func TestCompetitiveSkipsFlaggedAndUnbranded(t *testing.T) {
	flagged := categoryEvent("Soda", "COCA-COLA", 9.0)
	flagged.QualityFlag = model.FlagInvalidSentiment
	unbranded := categoryEvent("Soda", "", 0.5)

	if rows := Competitive([]model.Event{flagged, unbranded}); len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
}
