// Package store persists the pipeline's state in PostgreSQL: the raw intake
// log, the canonical merged event set, the derived aggregate tables, and the
// per-run summaries.
//
// It requires the following tables:
//
//	CREATE TABLE raw_events (
//	    id               BIGSERIAL PRIMARY KEY,
//	    source_id        TEXT NOT NULL,
//	    source           TEXT NOT NULL,
//	    brand            TEXT NOT NULL DEFAULT '',
//	    parent_company   TEXT NOT NULL DEFAULT '',
//	    category         TEXT NOT NULL DEFAULT '',
//	    headline         TEXT NOT NULL DEFAULT '',
//	    body             TEXT NOT NULL DEFAULT '',
//	    author           TEXT NOT NULL DEFAULT '',
//	    url              TEXT NOT NULL DEFAULT '',
//	    published_at     TIMESTAMPTZ NOT NULL,
//	    ingested_at      TIMESTAMPTZ NOT NULL,
//	    engagement_count BIGINT NOT NULL DEFAULT 0,
//	    sentiment_score  DOUBLE PRECISION NOT NULL DEFAULT 0
//	);
//	CREATE INDEX raw_events_published_at_idx ON raw_events (published_at);
//
//	CREATE TABLE events (
//	    event_id         TEXT PRIMARY KEY,
//	    source_id        TEXT NOT NULL,
//	    source           TEXT NOT NULL,
//	    brand            TEXT NOT NULL DEFAULT '',
//	    parent_company   TEXT NOT NULL DEFAULT '',
//	    category         TEXT NOT NULL DEFAULT '',
//	    headline         TEXT NOT NULL DEFAULT '',
//	    body             TEXT NOT NULL DEFAULT '',
//	    author           TEXT NOT NULL DEFAULT '',
//	    url              TEXT NOT NULL DEFAULT '',
//	    published_at     TIMESTAMPTZ NOT NULL,
//	    ingested_at      TIMESTAMPTZ NOT NULL,
//	    engagement_count BIGINT NOT NULL DEFAULT 0,
//	    sentiment_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    quality_flag     TEXT NOT NULL
//	);
//	CREATE INDEX events_published_at_idx ON events (published_at);
//	CREATE INDEX events_brand_idx ON events (brand);
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/brandintel/sentiment-platform/internal/merge"
	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/logger"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
)

const eventColumns = `event_id, source_id, source, brand, parent_company, category,
	headline, body, author, url, published_at, ingested_at, engagement_count,
	sentiment_score, quality_flag`

// EventStore persists the raw intake log and the canonical merged event set.
// It implements merge.EventStore.
type EventStore struct {
	db *postgres.Client
}

// NewEventStore creates an EventStore backed by the given client.
func NewEventStore(db *postgres.Client) *EventStore {
	return &EventStore{db: db}
}

// AppendRaw appends one normalized record to the intake log. The log is
// append-only; redelivered messages land as additional rows and the merge
// engine deduplicates them later.
func (s *EventStore) AppendRaw(ctx context.Context, e model.Event) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO raw_events (source_id, source, brand, parent_company, category,
			headline, body, author, url, published_at, ingested_at,
			engagement_count, sentiment_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.SourceID, string(e.Source), e.Brand, e.ParentCompany, e.Category,
		e.Headline, e.Body, e.Author, e.URL, e.PublishedAt.UTC(), e.IngestedAt.UTC(),
		e.EngagementCount, e.SentimentScore,
	)
	if err != nil {
		return fmt.Errorf("appending raw event: %w", err)
	}
	return nil
}

// HighWatermark returns the max published_at over persisted VALID events, or
// the zero time when none exist yet.
func (s *EventStore) HighWatermark(ctx context.Context) (time.Time, error) {
	var wm sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT MAX(published_at) FROM events WHERE quality_flag = $1`,
		string(model.FlagValid),
	).Scan(&wm)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying high watermark: %w", err)
	}
	if !wm.Valid {
		return time.Time{}, nil
	}
	return wm.Time.UTC(), nil
}

// Candidates returns intake records with published_at at or after since,
// oldest ingestion first so the dedup tie-break sees a stable order. A zero
// since selects the whole log.
func (s *EventStore) Candidates(ctx context.Context, since time.Time) ([]model.Event, error) {
	query := `SELECT source_id, source, brand, parent_company, category,
			headline, body, author, url, published_at, ingested_at,
			engagement_count, sentiment_score
		FROM raw_events`
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE published_at >= $1`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY ingested_at, id`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting merge candidates: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var source string
		if err := rows.Scan(&e.SourceID, &source, &e.Brand, &e.ParentCompany,
			&e.Category, &e.Headline, &e.Body, &e.Author, &e.URL,
			&e.PublishedAt, &e.IngestedAt, &e.EngagementCount, &e.SentimentScore); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		e.Source = model.Source(source)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Publish atomically replaces-or-inserts the given events keyed by event id.
// The batch lands in a temp staging table first; the delete and insert then
// commit together, so a failed run leaves the canonical set untouched.
func (s *EventStore) Publish(ctx context.Context, events []model.Event) (merge.PublishStats, error) {
	var stats merge.PublishStats
	if len(events) == 0 {
		return stats, nil
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`CREATE TEMP TABLE staged_events (LIKE events INCLUDING DEFAULTS) ON COMMIT DROP`,
		); err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("staged_events",
			"event_id", "source_id", "source", "brand", "parent_company",
			"category", "headline", "body", "author", "url", "published_at",
			"ingested_at", "engagement_count", "sentiment_score", "quality_flag"))
		if err != nil {
			return fmt.Errorf("preparing staging copy: %w", err)
		}
		for _, e := range events {
			if _, err := stmt.ExecContext(ctx,
				e.EventID, e.SourceID, string(e.Source), e.Brand, e.ParentCompany,
				e.Category, e.Headline, e.Body, e.Author, e.URL, e.PublishedAt.UTC(),
				e.IngestedAt.UTC(), e.EngagementCount, e.SentimentScore,
				string(e.QualityFlag)); err != nil {
				stmt.Close()
				return fmt.Errorf("staging event %s: %w", e.EventID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing staging copy: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("closing staging copy: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM events e USING staged_events s WHERE e.event_id = s.event_id`)
		if err != nil {
			return fmt.Errorf("replacing existing events: %w", err)
		}
		replaced, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("counting replaced events: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`) SELECT `+eventColumns+` FROM staged_events`,
		); err != nil {
			return fmt.Errorf("inserting merged events: %w", err)
		}

		stats.Replaced = int(replaced)
		stats.Inserted = len(events) - stats.Replaced
		return nil
	})
	if err != nil {
		return merge.PublishStats{}, err
	}

	logger.FromContext(ctx).Info("publish committed",
		"component", "event-store",
		"events", len(events),
		"inserted", stats.Inserted,
		"replaced", stats.Replaced,
	)
	return stats, nil
}

// EventsForDates loads every persisted event whose sentiment date is in the
// given set, flagged rows included; the aggregation boundary filters them.
func (s *EventStore) EventsForDates(ctx context.Context, dates []time.Time) ([]model.Event, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	// Dates travel as date[] literals. Passing time.Time values would make
	// Postgres resolve date = timestamptz in the session timezone, which is
	// not UTC on every server.
	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = d.UTC().Format("2006-01-02")
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE (published_at AT TIME ZONE 'UTC')::date = ANY($1::date[])`,
		pq.Array(days),
	)
	if err != nil {
		return nil, fmt.Errorf("selecting events for dates: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsSince loads every persisted event published at or after since.
func (s *EventStore) EventsSince(ctx context.Context, since time.Time) ([]model.Event, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE published_at >= $1`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("selecting events since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Prune deletes canonical and intake rows published before the cutoff and
// returns how many canonical events were removed.
func (s *EventStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var pruned int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE published_at < $1`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("pruning events: %w", err)
		}
		pruned, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("counting pruned events: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM raw_events WHERE published_at < $1`, cutoff.UTC()); err != nil {
			return fmt.Errorf("pruning intake log: %w", err)
		}
		return nil
	})
	return pruned, err
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var source, flag string
		if err := rows.Scan(&e.EventID, &e.SourceID, &source, &e.Brand,
			&e.ParentCompany, &e.Category, &e.Headline, &e.Body, &e.Author,
			&e.URL, &e.PublishedAt, &e.IngestedAt, &e.EngagementCount,
			&e.SentimentScore, &flag); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Source = model.Source(source)
		e.QualityFlag = model.QualityFlag(flag)
		events = append(events, e)
	}
	return events, rows.Err()
}
