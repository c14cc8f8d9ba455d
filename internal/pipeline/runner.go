// Package pipeline orchestrates one end-to-end run: the incremental merge,
// the daily aggregate recompute for touched dates, the parallel anomaly and
// trend rescores, retention pruning, and the run summary. Runs against the
// same database are serialised by an advisory lock; a run that cannot take it
// is skipped, never queued.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brandintel/sentiment-platform/internal/aggregate"
	"github.com/brandintel/sentiment-platform/internal/anomaly"
	"github.com/brandintel/sentiment-platform/internal/ingest"
	"github.com/brandintel/sentiment-platform/internal/merge"
	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/internal/trend"
	"github.com/brandintel/sentiment-platform/pkg/config"
	"github.com/brandintel/sentiment-platform/pkg/kafka"
	applogger "github.com/brandintel/sentiment-platform/pkg/logger"
	"github.com/brandintel/sentiment-platform/pkg/metrics"
	"github.com/brandintel/sentiment-platform/pkg/postgres"
	"github.com/brandintel/sentiment-platform/pkg/resilience"
)

// Unlock releases a held run lock.
type Unlock interface {
	Release(ctx context.Context) error
}

// Locker serialises pipeline runs. TryRunLock must not block; it reports
// (nil, false, nil) when another run holds the lock.
type Locker interface {
	TryRunLock(ctx context.Context) (Unlock, bool, error)
}

// PGLocker adapts the postgres advisory run lock to the Locker interface.
type PGLocker struct {
	Client *postgres.Client
}

func (l PGLocker) TryRunLock(ctx context.Context) (Unlock, bool, error) {
	lock, ok, err := l.Client.TryRunLock(ctx)
	if lock == nil {
		return nil, ok, err
	}
	return lock, ok, err
}

// Merger executes one incremental merge pass.
type Merger interface {
	Run(ctx context.Context) (merge.Result, error)
}

// EventReader serves the derived computations from the canonical event set.
type EventReader interface {
	EventsForDates(ctx context.Context, dates []time.Time) ([]model.Event, error)
	EventsSince(ctx context.Context, since time.Time) ([]model.Event, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// AggregateSink persists the derived tables.
type AggregateSink interface {
	ReplaceDaily(ctx context.Context, dates []time.Time, rows []model.DailyBrandAggregate) error
	BrandHistory(ctx context.Context, brands []string) ([]model.DailyBrandAggregate, error)
	UpdateAnomaly(ctx context.Context, rows []model.DailyBrandAggregate) error
	ReplaceTrendTopics(ctx context.Context, rows []model.TrendTopicAggregate) error
	ReplaceCompetitive(ctx context.Context, rows []model.CompetitiveRanking) error
}

// RunSink persists run summaries.
type RunSink interface {
	SaveSummary(ctx context.Context, summary model.RunSummary) error
}

// SummaryPublisher publishes run summaries to the message bus.
type SummaryPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// CacheFlusher invalidates cached API responses after a run changes the data
// underneath them.
type CacheFlusher interface {
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// StatsSource reports ingest counters for inclusion in the run summary.
type StatsSource interface {
	Stats() ingest.Stats
}

// Runner drives complete pipeline runs.
type Runner struct {
	locker     Locker
	merger     Merger
	events     EventReader
	aggregates AggregateSink
	runs       RunSink

	thresholds aggregate.Thresholds
	detector   *anomaly.Detector
	scorer     *trend.Scorer
	cfg        config.PipelineConfig

	publisher SummaryPublisher
	cache     CacheFlusher
	ingest    StatsSource

	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithClock overrides the Runner's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithPublisher sets the Kafka producer run summaries are published to.
func WithPublisher(p SummaryPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithCache sets the cache invalidated after each run.
func WithCache(c CacheFlusher) Option {
	return func(r *Runner) { r.cache = c }
}

// WithIngestStats sets the source of ingest counters for run summaries.
func WithIngestStats(s StatsSource) Option {
	return func(r *Runner) { r.ingest = s }
}

// NewRunner creates a Runner. The anomaly detector, trend scorer, and
// sentiment thresholds are derived from cfg.
func NewRunner(locker Locker, merger Merger, events EventReader, aggregates AggregateSink,
	runs RunSink, cfg config.PipelineConfig, m *metrics.Metrics, opts ...Option) *Runner {

	keywords := cfg.TopicKeywords
	if len(keywords) == 0 {
		keywords = config.DefaultTopicKeywords()
	}
	r := &Runner{
		locker:     locker,
		merger:     merger,
		events:     events,
		aggregates: aggregates,
		runs:       runs,
		thresholds: aggregate.Thresholds{
			Positive: cfg.SentimentThresholdPositive,
			Negative: cfg.SentimentThresholdNegative,
		},
		detector: anomaly.New(cfg.AnomalyZThreshold),
		scorer: trend.NewScorer(trend.NewExtractor(keywords), trend.Config{
			LookbackDays: cfg.TrendLookbackDays,
			MinMentions:  cfg.MinMentionsForTrend,
		}),
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "pipeline-runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the pipeline immediately, then on every tick of the configured
// interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("pipeline run failed", "error", err)
	}

	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("pipeline run failed", "error", err)
			}
		case <-ctx.Done():
			r.logger.Info("pipeline runner stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// Run executes one complete pipeline run and returns its summary. A summary
// is produced for every outcome; a run never fails silently.
func (r *Runner) Run(ctx context.Context) (model.RunSummary, error) {
	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
	}
	// Downstream logs pick the run ID up from the context.
	ctx = applogger.WithRunID(ctx, summary.RunID)
	logger := r.logger.With("run_id", summary.RunID)

	lock, acquired, err := r.locker.TryRunLock(ctx)
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("acquiring run lock: %w", err))
	}
	if !acquired {
		logger.Warn("another run holds the lock, skipping")
		summary.Status = model.RunSkipped
		summary.FinishedAt = r.now().UTC()
		r.metrics.RunsTotal.WithLabelValues(string(model.RunSkipped)).Inc()
		return summary, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Error("failed to release run lock", "error", err)
		}
	}()

	result, err := r.merger.Run(ctx)
	summary.Watermark = result.Watermark
	summary.WindowStart = result.WindowStart
	summary.Candidates = result.Candidates
	summary.Inserted = result.Inserted
	summary.Replaced = result.Replaced
	summary.Duplicates = result.Duplicates
	summary.Conflicts = result.Conflicts
	summary.FlagCounts = result.FlagCounts
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("merge pass: %w", err))
	}
	r.recordMergeMetrics(result)

	if len(result.TouchedDates) > 0 {
		events, err := r.events.EventsForDates(ctx, result.TouchedDates)
		if err != nil {
			return r.fail(ctx, summary, fmt.Errorf("loading events for touched dates: %w", err))
		}
		rows := aggregate.Daily(events, r.thresholds)
		if err := r.aggregates.ReplaceDaily(ctx, result.TouchedDates, rows); err != nil {
			return r.fail(ctx, summary, fmt.Errorf("replacing daily aggregates: %w", err))
		}
		summary.DatesRecomputed = len(result.TouchedDates)
	}

	now := r.now().UTC()
	lookback, err := r.events.EventsSince(ctx, now.AddDate(0, 0, -r.cfg.TrendLookbackDays))
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("loading lookback window: %w", err))
	}

	var (
		anomaliesFlagged int
		trendRows        []model.TrendTopicAggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(result.TouchedBrands) == 0 {
			return nil
		}
		history, err := r.aggregates.BrandHistory(gctx, result.TouchedBrands)
		if err != nil {
			return fmt.Errorf("loading brand histories: %w", err)
		}
		scored, flagged := r.detector.Score(history)
		if err := r.aggregates.UpdateAnomaly(gctx, scored); err != nil {
			return fmt.Errorf("updating anomaly statuses: %w", err)
		}
		anomaliesFlagged = flagged
		return nil
	})
	g.Go(func() error {
		rows := r.scorer.Compute(lookback, now)
		if err := r.aggregates.ReplaceTrendTopics(gctx, rows); err != nil {
			return fmt.Errorf("replacing trend topics: %w", err)
		}
		trendRows = rows
		return nil
	})
	g.Go(func() error {
		rows := aggregate.Competitive(lookback)
		if err := r.aggregates.ReplaceCompetitive(gctx, rows); err != nil {
			return fmt.Errorf("replacing competitive rankings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return r.fail(ctx, summary, err)
	}
	summary.BrandsRescored = len(result.TouchedBrands)
	summary.AnomaliesFlagged = anomaliesFlagged
	summary.TrendRows = len(trendRows)
	r.recordDerivedMetrics(anomaliesFlagged, trendRows)

	pruned, err := r.events.Prune(ctx, now.AddDate(0, 0, -r.cfg.RetentionDays))
	if err != nil {
		return r.fail(ctx, summary, fmt.Errorf("pruning expired events: %w", err))
	}
	summary.PrunedEvents = pruned
	r.metrics.EventsPruned.Add(float64(pruned))

	summary.Status = model.RunSucceeded
	summary.FinishedAt = r.now().UTC()
	if r.ingest != nil {
		summary.SchemaErrors = r.ingest.Stats().SchemaErrors
	}
	r.metrics.RunsTotal.WithLabelValues(string(model.RunSucceeded)).Inc()
	r.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	r.finish(ctx, summary)
	logger.Info("pipeline run complete",
		"candidates", summary.Candidates,
		"inserted", summary.Inserted,
		"replaced", summary.Replaced,
		"dates_recomputed", summary.DatesRecomputed,
		"anomalies_flagged", summary.AnomaliesFlagged,
		"trend_rows", summary.TrendRows,
		"pruned", summary.PrunedEvents,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

// fail finalises and reports a failed run. The summary is still persisted and
// published; downstream consumers need to see failures, not infer them.
func (r *Runner) fail(ctx context.Context, summary model.RunSummary, err error) (model.RunSummary, error) {
	summary.Status = model.RunFailed
	summary.Error = err.Error()
	summary.FinishedAt = r.now().UTC()
	if r.ingest != nil {
		summary.SchemaErrors = r.ingest.Stats().SchemaErrors
	}
	r.metrics.RunsTotal.WithLabelValues(string(model.RunFailed)).Inc()
	r.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	r.finish(ctx, summary)
	return summary, err
}

// finish persists and publishes the summary and invalidates cached reads.
// All three are best-effort: the run's outcome is already decided.
func (r *Runner) finish(ctx context.Context, summary model.RunSummary) {
	logger := r.logger.With("run_id", summary.RunID)
	if err := r.runs.SaveSummary(ctx, summary); err != nil {
		logger.Error("failed to persist run summary", "error", err)
	}
	if r.publisher != nil {
		err := resilience.Retry(ctx, "publish-run-summary", resilience.RetryConfig{}, func() error {
			return r.publisher.Publish(ctx, kafka.Event{Key: summary.RunID, Value: summary})
		})
		if err != nil {
			logger.Error("failed to publish run summary", "error", err)
		}
	}
	if r.cache != nil {
		deleted, err := r.cache.FlushByPattern(ctx, "api:*")
		if err != nil {
			logger.Error("failed to invalidate api cache", "error", err)
		} else if deleted > 0 {
			logger.Info("api cache invalidated", "keys", deleted)
		}
	}
}

func (r *Runner) recordMergeMetrics(result merge.Result) {
	if !result.Watermark.IsZero() {
		r.metrics.WatermarkAge.Set(r.now().Sub(result.Watermark).Seconds())
	}
	r.metrics.EventsMergedTotal.WithLabelValues("inserted").Add(float64(result.Inserted))
	r.metrics.EventsMergedTotal.WithLabelValues("replaced").Add(float64(result.Replaced))
	r.metrics.EventsMergedTotal.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	r.metrics.MergeConflictsTotal.Add(float64(result.Conflicts))
	for flag, n := range result.FlagCounts {
		r.metrics.QualityFlagsTotal.WithLabelValues(string(flag)).Add(float64(n))
	}
}

func (r *Runner) recordDerivedMetrics(anomalies int, trendRows []model.TrendTopicAggregate) {
	r.metrics.AnomaliesFlagged.Set(float64(anomalies))
	byStatus := make(map[model.TrendStatus]int)
	for _, row := range trendRows {
		byStatus[row.TrendStatus]++
	}
	r.metrics.TrendingTopics.Reset()
	for status, n := range byStatus {
		r.metrics.TrendingTopics.WithLabelValues(string(status)).Set(float64(n))
	}
}
