package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
)

// AggregateStore persists the derived tables: daily brand aggregates, trend
// topics, and competitive rankings.
//
// It requires:
//
//	CREATE TABLE daily_brand_aggregates (
//	    sentiment_date   DATE NOT NULL,
//	    brand            TEXT NOT NULL,
//	    parent_company   TEXT NOT NULL DEFAULT '',
//	    category         TEXT NOT NULL DEFAULT '',
//	    content_count    BIGINT NOT NULL,
//	    avg_sentiment    DOUBLE PRECISION NOT NULL,
//	    min_sentiment    DOUBLE PRECISION NOT NULL,
//	    max_sentiment    DOUBLE PRECISION NOT NULL,
//	    stddev_sentiment DOUBLE PRECISION NOT NULL,
//	    positive_count   BIGINT NOT NULL,
//	    negative_count   BIGINT NOT NULL,
//	    neutral_count    BIGINT NOT NULL,
//	    total_engagement BIGINT NOT NULL,
//	    avg_engagement   DOUBLE PRECISION NOT NULL,
//	    distinct_sources BIGINT NOT NULL,
//	    z_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    anomaly_status   TEXT NOT NULL DEFAULT 'NORMAL',
//	    PRIMARY KEY (sentiment_date, brand)
//	);
//
//	CREATE TABLE trend_topics (
//	    brand          TEXT NOT NULL,
//	    topic          TEXT NOT NULL,
//	    mentions_total BIGINT NOT NULL,
//	    mentions_7d    BIGINT NOT NULL,
//	    mentions_14d   BIGINT NOT NULL,
//	    avg_sentiment  DOUBLE PRECISION NOT NULL,
//	    avg_engagement DOUBLE PRECISION NOT NULL,
//	    max_engagement BIGINT NOT NULL,
//	    trending_score DOUBLE PRECISION NOT NULL,
//	    trend_status   TEXT NOT NULL,
//	    PRIMARY KEY (brand, topic)
//	);
//
//	CREATE TABLE competitive_rankings (
//	    category           TEXT NOT NULL,
//	    brand              TEXT NOT NULL,
//	    parent_company     TEXT NOT NULL DEFAULT '',
//	    mention_count      BIGINT NOT NULL,
//	    share_of_voice_pct DOUBLE PRECISION NOT NULL,
//	    avg_sentiment      DOUBLE PRECISION NOT NULL,
//	    sentiment_rank     INT NOT NULL,
//	    share_rank         INT NOT NULL,
//	    PRIMARY KEY (category, brand)
//	);
type AggregateStore struct {
	db *postgres.Client
}

// NewAggregateStore creates an AggregateStore backed by the given client.
func NewAggregateStore(db *postgres.Client) *AggregateStore {
	return &AggregateStore{db: db}
}

// ReplaceDaily deletes every aggregate row for the given dates and inserts
// the recomputed ones in the same transaction. Replace-not-add is what makes
// the recompute idempotent: a date with no surviving VALID events simply ends
// up with no row.
func (s *AggregateStore) ReplaceDaily(ctx context.Context, dates []time.Time, rows []model.DailyBrandAggregate) error {
	if len(dates) == 0 {
		return nil
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = d.UTC()
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_brand_aggregates WHERE sentiment_date = ANY($1)`,
			pq.Array(days),
		); err != nil {
			return fmt.Errorf("clearing daily aggregates: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO daily_brand_aggregates (sentiment_date, brand,
					parent_company, category, content_count, avg_sentiment,
					min_sentiment, max_sentiment, stddev_sentiment,
					positive_count, negative_count, neutral_count,
					total_engagement, avg_engagement, distinct_sources,
					z_score, anomaly_status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				r.SentimentDate.UTC(), r.Brand, r.ParentCompany, r.Category,
				r.ContentCount, r.AvgSentiment, r.MinSentiment, r.MaxSentiment,
				r.StddevSentiment, r.PositiveCount, r.NegativeCount,
				r.NeutralCount, r.TotalEngagement, r.AvgEngagement,
				r.DistinctSources, r.ZScore, string(r.AnomalyStatus),
			); err != nil {
				return fmt.Errorf("inserting daily aggregate %s/%s: %w",
					r.SentimentDate.Format("2006-01-02"), r.Brand, err)
			}
		}
		return nil
	})
}

// BrandHistory loads the complete daily history of the given brands, ordered
// by brand then date. Anomaly scoring needs full histories; a partial one
// drifts the brand mean.
func (s *AggregateStore) BrandHistory(ctx context.Context, brands []string) ([]model.DailyBrandAggregate, error) {
	if len(brands) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT sentiment_date, brand, parent_company, category, content_count,
			avg_sentiment, min_sentiment, max_sentiment, stddev_sentiment,
			positive_count, negative_count, neutral_count, total_engagement,
			avg_engagement, distinct_sources, z_score, anomaly_status
		FROM daily_brand_aggregates
		WHERE brand = ANY($1)
		ORDER BY brand, sentiment_date`,
		pq.Array(brands),
	)
	if err != nil {
		return nil, fmt.Errorf("loading brand history: %w", err)
	}
	defer rows.Close()
	return scanDailyAggregates(rows)
}

// UpdateAnomaly writes the recomputed z-score and status of each row.
func (s *AggregateStore) UpdateAnomaly(ctx context.Context, rows []model.DailyBrandAggregate) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`UPDATE daily_brand_aggregates
				SET z_score = $1, anomaly_status = $2
				WHERE sentiment_date = $3 AND brand = $4`,
				r.ZScore, string(r.AnomalyStatus), r.SentimentDate.UTC(), r.Brand,
			); err != nil {
				return fmt.Errorf("updating anomaly status %s/%s: %w",
					r.SentimentDate.Format("2006-01-02"), r.Brand, err)
			}
		}
		return nil
	})
}

// DailyRange returns a brand's aggregates between from and to inclusive,
// oldest first.
func (s *AggregateStore) DailyRange(ctx context.Context, brand string, from, to time.Time) ([]model.DailyBrandAggregate, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT sentiment_date, brand, parent_company, category, content_count,
			avg_sentiment, min_sentiment, max_sentiment, stddev_sentiment,
			positive_count, negative_count, neutral_count, total_engagement,
			avg_engagement, distinct_sources, z_score, anomaly_status
		FROM daily_brand_aggregates
		WHERE brand = $1 AND sentiment_date BETWEEN $2 AND $3
		ORDER BY sentiment_date`,
		brand, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying daily aggregates: %w", err)
	}
	defer rows.Close()
	return scanDailyAggregates(rows)
}

// ReplaceTrendTopics swaps the whole trend table for the recomputed rows.
// The lookback window slides continuously, so the table is always rebuilt in
// full.
func (s *AggregateStore) ReplaceTrendTopics(ctx context.Context, rows []model.TrendTopicAggregate) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trend_topics`); err != nil {
			return fmt.Errorf("clearing trend topics: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trend_topics (brand, topic, mentions_total,
					mentions_7d, mentions_14d, avg_sentiment, avg_engagement,
					max_engagement, trending_score, trend_status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				r.Brand, r.Topic, r.MentionsTotal, r.Mentions7d, r.Mentions14d,
				r.AvgSentiment, r.AvgEngagement, r.MaxEngagement,
				r.TrendingScore, string(r.TrendStatus),
			); err != nil {
				return fmt.Errorf("inserting trend topic %s/%s: %w", r.Brand, r.Topic, err)
			}
		}
		return nil
	})
}

// TrendTopics returns the current trend rows, highest score first, optionally
// filtered by status.
func (s *AggregateStore) TrendTopics(ctx context.Context, status string) ([]model.TrendTopicAggregate, error) {
	query := `SELECT brand, topic, mentions_total, mentions_7d, mentions_14d,
			avg_sentiment, avg_engagement, max_engagement, trending_score,
			trend_status
		FROM trend_topics`
	args := []any{}
	if status != "" {
		query += ` WHERE trend_status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY trending_score DESC, brand, topic`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trend topics: %w", err)
	}
	defer rows.Close()

	var out []model.TrendTopicAggregate
	for rows.Next() {
		var r model.TrendTopicAggregate
		var st string
		if err := rows.Scan(&r.Brand, &r.Topic, &r.MentionsTotal, &r.Mentions7d,
			&r.Mentions14d, &r.AvgSentiment, &r.AvgEngagement, &r.MaxEngagement,
			&r.TrendingScore, &st); err != nil {
			return nil, fmt.Errorf("scanning trend row: %w", err)
		}
		r.TrendStatus = model.TrendStatus(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceCompetitive swaps the whole rankings table for the recomputed rows.
func (s *AggregateStore) ReplaceCompetitive(ctx context.Context, rows []model.CompetitiveRanking) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM competitive_rankings`); err != nil {
			return fmt.Errorf("clearing competitive rankings: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO competitive_rankings (category, brand,
					parent_company, mention_count, share_of_voice_pct,
					avg_sentiment, sentiment_rank, share_rank)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				r.Category, r.Brand, r.ParentCompany, r.MentionCount,
				r.ShareOfVoicePct, r.AvgSentiment, r.SentimentRank, r.ShareRank,
			); err != nil {
				return fmt.Errorf("inserting ranking %s/%s: %w", r.Category, r.Brand, err)
			}
		}
		return nil
	})
}

// Competitive returns the current rankings, optionally filtered by category,
// ordered by category then share rank.
func (s *AggregateStore) Competitive(ctx context.Context, category string) ([]model.CompetitiveRanking, error) {
	query := `SELECT category, brand, parent_company, mention_count,
			share_of_voice_pct, avg_sentiment, sentiment_rank, share_rank
		FROM competitive_rankings`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category, share_rank`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying competitive rankings: %w", err)
	}
	defer rows.Close()

	var out []model.CompetitiveRanking
	for rows.Next() {
		var r model.CompetitiveRanking
		if err := rows.Scan(&r.Category, &r.Brand, &r.ParentCompany,
			&r.MentionCount, &r.ShareOfVoicePct, &r.AvgSentiment,
			&r.SentimentRank, &r.ShareRank); err != nil {
			return nil, fmt.Errorf("scanning ranking row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDailyAggregates(rows *sql.Rows) ([]model.DailyBrandAggregate, error) {
	var out []model.DailyBrandAggregate
	for rows.Next() {
		var r model.DailyBrandAggregate
		var status string
		if err := rows.Scan(&r.SentimentDate, &r.Brand, &r.ParentCompany,
			&r.Category, &r.ContentCount, &r.AvgSentiment, &r.MinSentiment,
			&r.MaxSentiment, &r.StddevSentiment, &r.PositiveCount,
			&r.NegativeCount, &r.NeutralCount, &r.TotalEngagement,
			&r.AvgEngagement, &r.DistinctSources, &r.ZScore, &status); err != nil {
			return nil, fmt.Errorf("scanning aggregate row: %w", err)
		}
		r.AnomalyStatus = model.AnomalyStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
