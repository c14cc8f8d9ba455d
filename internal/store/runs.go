package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
)

// RunStore persists per-run summaries as JSONB snapshots.
//
// It requires a `run_summaries` table:
//
//	CREATE TABLE run_summaries (
//	    id          BIGSERIAL PRIMARY KEY,
//	    run_id      TEXT NOT NULL UNIQUE,
//	    status      TEXT NOT NULL,
//	    data        JSONB NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL
//	);
type RunStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewRunStore creates a RunStore backed by the given client.
func NewRunStore(db *postgres.Client) *RunStore {
	return &RunStore{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// SaveSummary persists one run summary.
func (s *RunStore) SaveSummary(ctx context.Context, summary model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO run_summaries (run_id, status, data, finished_at)
		VALUES ($1, $2, $3, $4)`,
		summary.RunID, string(summary.Status), data, summary.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}

	s.logger.Info("run summary saved",
		"run_id", summary.RunID,
		"status", summary.Status,
	)
	return nil
}

// LatestSummary loads the most recent run summary. Returns nil, nil when no
// run has completed yet.
func (s *RunStore) LatestSummary(ctx context.Context) (*model.RunSummary, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM run_summaries ORDER BY finished_at DESC, id DESC LIMIT 1`,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run summary: %w", err)
	}

	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshaling run summary: %w", err)
	}
	return &summary, nil
}

// ListSummaries returns the last N run summaries, newest first.
func (s *RunStore) ListSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM run_summaries ORDER BY finished_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run summary row: %w", err)
		}
		var summary model.RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			s.logger.Warn("skipping corrupt run summary", "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
