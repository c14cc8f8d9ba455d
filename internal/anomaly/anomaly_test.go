package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func history(brand string, scores ...float64) []model.DailyBrandAggregate {
	rows := make([]model.DailyBrandAggregate, len(scores))
	for i, s := range scores {
		rows[i] = model.DailyBrandAggregate{
			SentimentDate: day(i + 1),
			Brand:         brand,
			AvgSentiment:  s,
		}
	}
	return rows
}

// A single outlier day against a steady history gets flagged. Nine days at
// 0.1 then 0.9 puts the outlier at z = 3.0 exactly.
func TestScoreFlagsOutlierDay(t *testing.T) {
	rows := history("COCA-COLA", 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9)

	scored, flagged := New(2.0).Score(rows)

	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}
	last := scored[len(scored)-1]
	if last.AnomalyStatus != model.AnomalyFlagged {
		t.Errorf("outlier day status = %s, want ANOMALY", last.AnomalyStatus)
	}
	if last.ZScore <= 2 {
		t.Errorf("outlier day z = %v, want > 2", last.ZScore)
	}
	for _, r := range scored[:len(scored)-1] {
		if r.AnomalyStatus != model.AnomalyNormal {
			t.Errorf("day %v flagged unexpectedly (z=%v)", r.SentimentDate, r.ZScore)
		}
	}
}

// A short history [0.1, 0.1, 0.1, 0.9] maxes out at z = sqrt(3) over
// four points; the outlier dominates the distribution it is scored against.
// A lower threshold still catches it.
func TestShortHistoryOutlier(t *testing.T) {
	rows := history("COCA-COLA", 0.1, 0.1, 0.1, 0.9)

	scored, flagged := New(1.5).Score(rows)

	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}
	if got := scored[3].ZScore; math.Abs(got-math.Sqrt(3)) > 1e-9 {
		t.Errorf("day 4 z = %v, want sqrt(3)", got)
	}
}

// A brand with constant sentiment must never flag: stddev = 0 is guarded and
// z is defined as 0.
func TestConstantHistoryNeverFlags(t *testing.T) {
	rows := history("PEPSICO", 0.4, 0.4, 0.4, 0.4, 0.4)

	scored, flagged := New(2.0).Score(rows)

	if flagged != 0 {
		t.Fatalf("flagged = %d, want 0", flagged)
	}
	for _, r := range scored {
		if r.ZScore != 0 {
			t.Errorf("z = %v, want 0 for constant history", r.ZScore)
		}
		if r.AnomalyStatus != model.AnomalyNormal {
			t.Errorf("status = %s, want NORMAL", r.AnomalyStatus)
		}
	}
}

func TestSingleDataPointNeverFlags(t *testing.T) {
	_, flagged := New(2.0).Score(history("NESTLE", 0.9))
	if flagged != 0 {
		t.Errorf("flagged = %d, want 0 for a single observation", flagged)
	}
}

// Brands are scored against their own history only: A's outlier day reaches
// z = 3.0 over ten points, while constant B must stay untouched by it.
func TestScoreIsPerBrand(t *testing.T) {
	rows := append(
		history("A", 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9),
		history("B", -0.5, -0.5, -0.5, -0.5)...,
	)

	scored, flagged := New(2.0).Score(rows)

	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}
	for _, r := range scored {
		if r.Brand == "B" && r.AnomalyStatus != model.AnomalyNormal {
			t.Error("constant brand B must stay NORMAL")
		}
		if r.Brand == "B" && r.ZScore != 0 {
			t.Errorf("brand B z = %v, want 0", r.ZScore)
		}
	}
}

func TestZScoreValue(t *testing.T) {
	// History [0, 0, 1]: mean = 1/3, population stddev = sqrt(2)/3.
	scored, _ := New(2.0).Score(history("X", 0, 0, 1))

	mean := 1.0 / 3.0
	stddev := math.Sqrt(2.0) / 3.0
	wantZ := (1.0 - mean) / stddev
	if got := scored[2].ZScore; math.Abs(got-wantZ) > 1e-9 {
		t.Errorf("z = %v, want %v", got, wantZ)
	}
}

func TestNonPositiveThresholdUsesDefault(t *testing.T) {
	d := New(0)
	if d.zThreshold != DefaultZThreshold {
		t.Errorf("threshold = %v, want default %v", d.zThreshold, DefaultZThreshold)
	}
}
