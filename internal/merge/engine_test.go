package merge

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/brandintel/sentiment-platform/internal/identity"
	"github.com/brandintel/sentiment-platform/internal/model"
)

// memoryStore implements EventStore with the same atomic replace semantics as
// the Postgres store: Publish swaps whole rows keyed by event id.
type memoryStore struct {
	raw       []model.Event
	persisted map[string]model.Event
}

func newMemoryStore() *memoryStore {
	return &memoryStore{persisted: make(map[string]model.Event)}
}

func (s *memoryStore) HighWatermark(ctx context.Context) (time.Time, error) {
	var wm time.Time
	for _, e := range s.persisted {
		if e.QualityFlag == model.FlagValid && e.PublishedAt.After(wm) {
			wm = e.PublishedAt
		}
	}
	return wm, nil
}

func (s *memoryStore) Candidates(ctx context.Context, since time.Time) ([]model.Event, error) {
	var out []model.Event
	for _, e := range s.raw {
		if !e.PublishedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) Publish(ctx context.Context, events []model.Event) (PublishStats, error) {
	var stats PublishStats
	for _, e := range events {
		if _, ok := s.persisted[e.EventID]; ok {
			stats.Replaced++
		} else {
			stats.Inserted++
		}
		s.persisted[e.EventID] = e
	}
	return stats, nil
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store EventStore) *Engine {
	return New(store, 24*time.Hour, WithClock(func() time.Time { return fixedNow }))
}

func rawEvent(sourceID string, source model.Source, pub, ing time.Time, score float64) model.Event {
	return model.Event{
		SourceID:        sourceID,
		Source:          source,
		Brand:           "COCA-COLA",
		Category:        "BEVERAGES",
		Headline:        "post about " + sourceID,
		PublishedAt:     pub,
		IngestedAt:      ing,
		SentimentScore:  score,
		EngagementCount: 10,
	}
}

// Two deliveries of the same triple collapse into one
// persisted event.
func TestMergeDeduplicatesRedelivery(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.raw = []model.Event{
		rawEvent("A", model.SourceSocial, pub, pub.Add(time.Hour), 0.9),
		rawEvent("A", model.SourceSocial, pub, pub.Add(2*time.Hour), 0.9),
	}

	result, err := newTestEngine(store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(store.persisted) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(store.persisted))
	}
	if result.Inserted != 1 || result.Duplicates != 1 {
		t.Errorf("inserted=%d duplicates=%d, want 1/1", result.Inserted, result.Duplicates)
	}
}

func TestMergeKeepsMostRecentlyIngested(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	early := rawEvent("A", model.SourceSocial, pub, pub.Add(time.Hour), 0.1)
	late := rawEvent("A", model.SourceSocial, pub, pub.Add(5*time.Hour), 0.8)
	late.EngagementCount = 50
	store.raw = []model.Event{early, late}

	if _, err := newTestEngine(store).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, e := range store.persisted {
		if e.SentimentScore != 0.8 || e.EngagementCount != 50 {
			t.Errorf("kept the wrong version: %+v", e)
		}
	}
}

func TestMergeIdempotence(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B", "C"} {
		pub := base.Add(time.Duration(i) * time.Hour)
		store.raw = append(store.raw, rawEvent(id, model.SourceSocial, pub, pub.Add(time.Minute), 0.5))
	}
	engine := newTestEngine(store)

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstState := make(map[string]model.Event, len(store.persisted))
	for k, v := range store.persisted {
		firstState[k] = v
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !reflect.DeepEqual(store.persisted, firstState) {
		t.Error("second run over the same window changed persisted state")
	}
	if result.Inserted != 0 {
		t.Errorf("second run inserted %d new rows, want 0", result.Inserted)
	}
	if result.Replaced != len(firstState) {
		t.Errorf("second run replaced %d rows, want %d", result.Replaced, len(firstState))
	}
}

func TestMergeCrossSourceEventsAreDistinct(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.raw = []model.Event{
		rawEvent("12345", model.SourceSocial, pub, pub.Add(time.Minute), 0.2),
		rawEvent("12345", model.SourceNews, pub, pub.Add(time.Minute), 0.2),
	}

	if _, err := newTestEngine(store).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(store.persisted) != 2 {
		t.Fatalf("same source_id from two providers must persist as 2 events, got %d", len(store.persisted))
	}
	seen := make(map[string]struct{})
	for id := range store.persisted {
		if _, dup := seen[id]; dup {
			t.Error("duplicate event id across sources")
		}
		seen[id] = struct{}{}
	}
}

func TestMergeWindowExcludesEventsBeforeOverlap(t *testing.T) {
	store := newMemoryStore()
	wmTime := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	// Seed persisted state so the watermark sits at wmTime.
	seed := identity.Resolve(rawEvent("SEED", model.SourceSocial, wmTime, wmTime, 0.5))
	seed.QualityFlag = model.FlagValid
	store.persisted[seed.EventID] = seed

	inWindow := rawEvent("IN", model.SourceSocial, wmTime.Add(-23*time.Hour), fixedNow, 0.5)
	tooOld := rawEvent("OLD", model.SourceSocial, wmTime.Add(-25*time.Hour), fixedNow, 0.5)
	store.raw = []model.Event{inWindow, tooOld}

	result, err := newTestEngine(store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Candidates != 1 {
		t.Errorf("candidates = %d, want 1 (only the event inside the overlap window)", result.Candidates)
	}
	if len(store.persisted) != 2 {
		t.Errorf("persisted = %d, want seed + in-window event", len(store.persisted))
	}
}

func TestMergeEmptyStoreSelectsEverything(t *testing.T) {
	store := newMemoryStore()
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.raw = []model.Event{rawEvent("ANCIENT", model.SourceNews, old, old, 0.1)}

	result, err := newTestEngine(store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.Watermark.IsZero() {
		t.Errorf("empty store watermark = %v, want zero sentinel", result.Watermark)
	}
	if result.Candidates != 1 || len(store.persisted) != 1 {
		t.Error("beginning-of-time sentinel must select all raw events")
	}
}

func TestMergePersistsInvalidEventsWithFlags(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bad := rawEvent("BAD", model.SourceSocial, pub, pub, 7.5)
	noHeadline := rawEvent("BLANK", model.SourceSocial, pub, pub, 0.5)
	noHeadline.Headline = ""
	future := rawEvent("FUTURE", model.SourceSocial, fixedNow.Add(48*time.Hour), pub, 0.5)
	store.raw = []model.Event{bad, noHeadline, future}

	result, err := newTestEngine(store).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(store.persisted) != 3 {
		t.Fatalf("invalid events must be persisted, got %d rows", len(store.persisted))
	}
	want := map[model.QualityFlag]int{
		model.FlagInvalidSentiment: 1,
		model.FlagNullHeadline:     1,
		model.FlagFutureDate:       1,
	}
	if !reflect.DeepEqual(result.FlagCounts, want) {
		t.Errorf("flag counts = %v, want %v", result.FlagCounts, want)
	}
}

// Future-dated events must not drag the watermark forward: they are flagged,
// not VALID, so they never define the window boundary.
func TestFutureEventsDoNotAdvanceWatermark(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.raw = []model.Event{
		rawEvent("OK", model.SourceSocial, pub, pub, 0.5),
		rawEvent("FUTURE", model.SourceSocial, fixedNow.Add(72*time.Hour), pub, 0.5),
	}
	engine := newTestEngine(store)
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wm, err := store.HighWatermark(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !wm.Equal(pub) {
		t.Errorf("watermark = %v, want %v (future-dated events excluded)", wm, pub)
	}
}

func TestMergeExcludesConflictingGroups(t *testing.T) {
	store := newMemoryStore()
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := rawEvent("A", model.SourceSocial, pub, pub, 0.5)
	b := rawEvent("B", model.SourceSocial, pub.Add(time.Hour), pub, 0.5)

	cands := []model.Event{identity.Resolve(a), identity.Resolve(b)}
	// Corrupt identity: force b to claim a's id, as a legacy two-field key
	// variant would.
	cands[1].EventID = cands[0].EventID
	store.persisted = make(map[string]model.Event)

	engine := newTestEngine(&conflictStore{memoryStore: store, cands: cands})
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("conflicts are per-event, not fatal: %v", err)
	}
	if result.Conflicts != 2 {
		t.Errorf("conflicts = %d, want 2", result.Conflicts)
	}
	if len(store.persisted) != 0 {
		t.Errorf("conflicting candidates must be excluded, got %d persisted", len(store.persisted))
	}
}

// conflictStore returns pre-resolved candidates so the test can inject a
// corrupted event id.
type conflictStore struct {
	*memoryStore
	cands []model.Event
}

func (s *conflictStore) Candidates(ctx context.Context, since time.Time) ([]model.Event, error) {
	return s.cands, nil
}

func TestDefaultComparator(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	tests := []struct {
		name string
		a, b model.Event
		want bool
	}{
		{
			name: "later ingestion wins",
			a:    model.Event{IngestedAt: t2},
			b:    model.Event{IngestedAt: t1},
			want: true,
		},
		{
			name: "earlier ingestion loses",
			a:    model.Event{IngestedAt: t1},
			b:    model.Event{IngestedAt: t2},
			want: false,
		},
		{
			name: "tie broken by engagement",
			a:    model.Event{IngestedAt: t1, EngagementCount: 9},
			b:    model.Event{IngestedAt: t1, EngagementCount: 3},
			want: true,
		},
		{
			name: "full tie broken by headline",
			a:    model.Event{IngestedAt: t1, Headline: "alpha"},
			b:    model.Event{IngestedAt: t1, Headline: "beta"},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultComparator(tt.a, tt.b); got != tt.want {
				t.Errorf("DefaultComparator() = %v, want %v", got, tt.want)
			}
		})
	}
}
