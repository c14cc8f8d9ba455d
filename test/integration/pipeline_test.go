// Package integration contains tests that exercise the pipeline's storage
// layer against a real PostgreSQL instance. Tests skip themselves when the
// database is unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/brandintel/sentiment-platform/internal/merge"
	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/internal/store"
	"github.com/brandintel/sentiment-platform/pkg/config"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "brandsentiment_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "brandsentiment"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func createSchema(t *testing.T, db *postgres.Client) {
	t.Helper()
	ctx := context.Background()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS raw_events (
			id               BIGSERIAL PRIMARY KEY,
			source_id        TEXT NOT NULL,
			source           TEXT NOT NULL,
			brand            TEXT NOT NULL DEFAULT '',
			parent_company   TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			headline         TEXT NOT NULL DEFAULT '',
			body             TEXT NOT NULL DEFAULT '',
			author           TEXT NOT NULL DEFAULT '',
			url              TEXT NOT NULL DEFAULT '',
			published_at     TIMESTAMPTZ NOT NULL,
			ingested_at      TIMESTAMPTZ NOT NULL,
			engagement_count BIGINT NOT NULL DEFAULT 0,
			sentiment_score  DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id         TEXT PRIMARY KEY,
			source_id        TEXT NOT NULL,
			source           TEXT NOT NULL,
			brand            TEXT NOT NULL DEFAULT '',
			parent_company   TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			headline         TEXT NOT NULL DEFAULT '',
			body             TEXT NOT NULL DEFAULT '',
			author           TEXT NOT NULL DEFAULT '',
			url              TEXT NOT NULL DEFAULT '',
			published_at     TIMESTAMPTZ NOT NULL,
			ingested_at      TIMESTAMPTZ NOT NULL,
			engagement_count BIGINT NOT NULL DEFAULT 0,
			sentiment_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality_flag     TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("creating schema: %v", err)
		}
	}
	t.Cleanup(func() {
		db.DB.ExecContext(context.Background(), `TRUNCATE raw_events, events`)
	})
	if _, err := db.DB.ExecContext(ctx, `TRUNCATE raw_events, events`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}

func rawEvent(sourceID string, publishedAt time.Time, engagement int64) model.Event {
	return model.Event{
		SourceID:        sourceID,
		Source:          model.SourceSocial,
		Brand:           "COCA-COLA",
		ParentCompany:   "THE COCA-COLA COMPANY",
		Category:        "BEVERAGES",
		Headline:        "big product launch",
		PublishedAt:     publishedAt,
		IngestedAt:      publishedAt.Add(time.Minute),
		EngagementCount: engagement,
		SentimentScore:  0.4,
	}
}

// The merge engine against real PostgreSQL: redeliveries deduplicate, and
// rerunning the same window leaves the canonical set unchanged.
func TestMergeIsIdempotentAgainstPostgres(t *testing.T) {
	db := skipIfNoPostgres(t)
	createSchema(t, db)

	ctx := context.Background()
	eventStore := store.NewEventStore(db)
	published := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	// Two distinct events plus one redelivery of the first.
	for _, e := range []model.Event{
		rawEvent("p1", published, 10),
		rawEvent("p2", published.Add(time.Hour), 5),
		rawEvent("p1", published, 10),
	} {
		if err := eventStore.AppendRaw(ctx, e); err != nil {
			t.Fatalf("appending raw event: %v", err)
		}
	}

	clock := func() time.Time { return published.Add(24 * time.Hour) }
	engine := merge.New(eventStore, 24*time.Hour, merge.WithClock(clock))

	first, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("first merge run: %v", err)
	}
	if first.Inserted != 2 || first.Duplicates != 1 {
		t.Errorf("first run inserted=%d duplicates=%d, want 2/1", first.Inserted, first.Duplicates)
	}

	second, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("second merge run: %v", err)
	}
	if second.Inserted != 0 || second.Replaced != 2 {
		t.Errorf("second run inserted=%d replaced=%d, want 0/2", second.Inserted, second.Replaced)
	}

	var count int
	if err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("counting events: %v", err)
	}
	if count != 2 {
		t.Errorf("persisted events = %d, want 2", count)
	}

	wm, err := eventStore.HighWatermark(ctx)
	if err != nil {
		t.Fatalf("querying watermark: %v", err)
	}
	if !wm.Equal(published.Add(time.Hour)) {
		t.Errorf("watermark = %v, want %v", wm, published.Add(time.Hour))
	}
}

// Touched-date selection must go by UTC calendar date no matter what the
// server's session timezone is: an event published at 23:30 UTC belongs to
// that UTC date even when the session clock has already rolled over.
func TestEventsForDatesIgnoresSessionTimezone(t *testing.T) {
	cfg := testPostgresConfig()
	// One pinned connection so SET TIME ZONE applies to every query below.
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	createSchema(t, db)

	ctx := context.Background()
	if _, err := db.DB.ExecContext(ctx, `SET TIME ZONE 'America/New_York'`); err != nil {
		t.Fatalf("setting session timezone: %v", err)
	}

	lateNight := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	nextDay := time.Date(2024, 6, 2, 0, 30, 0, 0, time.UTC)
	for id, published := range map[string]time.Time{"e1": lateNight, "e2": nextDay} {
		if _, err := db.DB.ExecContext(ctx,
			`INSERT INTO events (event_id, source_id, source, brand, published_at,
				ingested_at, quality_flag)
			VALUES ($1, $1, 'SOCIAL', 'COCA-COLA', $2, $2, 'VALID')`,
			id, published,
		); err != nil {
			t.Fatalf("inserting event %s: %v", id, err)
		}
	}

	eventStore := store.NewEventStore(db)
	got, err := eventStore.EventsForDates(ctx, []time.Time{
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("loading events for date: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "e1" {
		t.Errorf("got %d events for 2024-06-01 (want just e1): %+v", len(got), got)
	}
}

// The advisory run lock must be exclusive across connections.
func TestRunLockIsExclusive(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	lock, acquired, err := db.TryRunLock(ctx)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !acquired {
		t.Fatal("first lock not acquired")
	}

	_, acquiredAgain, err := db.TryRunLock(ctx)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if acquiredAgain {
		t.Error("lock granted twice")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("releasing lock: %v", err)
	}

	relock, acquired, err := db.TryRunLock(ctx)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	if !acquired {
		t.Error("lock not reacquirable after release")
	}
	relock.Release(ctx)
}
