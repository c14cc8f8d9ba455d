package model

import "time"

// RunStatus is the final state of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// RunSummary is the per-run report: what window was processed, how the merge
// resolved candidates, and what the derived recomputations touched. It is
// persisted as a snapshot and published to Kafka; a run never fails silently.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Status      RunStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Watermark   time.Time `json:"watermark"`
	WindowStart time.Time `json:"window_start"`

	Candidates   int                 `json:"candidates"`
	Inserted     int                 `json:"inserted"`
	Replaced     int                 `json:"replaced"`
	Duplicates   int                 `json:"duplicates"`
	Conflicts    int                 `json:"conflicts"`
	SchemaErrors int64               `json:"schema_errors"`
	FlagCounts   map[QualityFlag]int `json:"flag_counts"`

	DatesRecomputed  int   `json:"dates_recomputed"`
	BrandsRescored   int   `json:"brands_rescored"`
	AnomaliesFlagged int   `json:"anomalies_flagged"`
	TrendRows        int   `json:"trend_rows"`
	PrunedEvents     int64 `json:"pruned_events"`
}
