// Package merge implements the incremental event-unification engine: it
// selects a candidate window behind the high watermark, assigns identity and
// quality flags, deduplicates by event id, and publishes the surviving rows
// atomically. Running the same window twice produces identical persisted
// state; that idempotence is the property the engine exists to satisfy.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brandintel/sentiment-platform/internal/identity"
	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/internal/quality"
)

// EventStore is the persistence boundary the engine drives. The engine is
// the only writer of canonical event state; Publish must replace rows with
// matching event ids and insert the rest as one atomic operation
// (staging-then-swap, never a partial commit).
type EventStore interface {
	// HighWatermark returns the max published_at over persisted VALID
	// events, or the zero time when the store is empty.
	HighWatermark(ctx context.Context) (time.Time, error)

	// Candidates returns normalized intake records with published_at at or
	// after since. A zero since selects everything.
	Candidates(ctx context.Context, since time.Time) ([]model.Event, error)

	// Publish atomically replaces-or-inserts the given events keyed by
	// event id and reports how many were new versus replaced.
	Publish(ctx context.Context, events []model.Event) (PublishStats, error)
}

// PublishStats reports the outcome of an atomic publish.
type PublishStats struct {
	Inserted int
	Replaced int
}

// Comparator reports whether a should win over b when both claim the same
// event id. It must induce a total order so deduplication is deterministic.
type Comparator func(a, b model.Event) bool

// DefaultComparator keeps the most recently observed version: ingested_at
// descending, tie-broken on engagement then headline so equal-ingestion
// re-deliveries still resolve deterministically.
func DefaultComparator(a, b model.Event) bool {
	if !a.IngestedAt.Equal(b.IngestedAt) {
		return a.IngestedAt.After(b.IngestedAt)
	}
	if a.EngagementCount != b.EngagementCount {
		return a.EngagementCount > b.EngagementCount
	}
	return a.Headline < b.Headline
}

// Result summarises one merge pass.
type Result struct {
	Watermark   time.Time
	WindowStart time.Time
	Candidates  int
	Inserted    int
	Replaced    int
	Duplicates  int
	Conflicts   int
	FlagCounts  map[model.QualityFlag]int

	// TouchedDates and TouchedBrands drive the downstream recompute: every
	// date whose event set may have changed, and every brand needing an
	// anomaly rescore. Invalid events count too: replacing a VALID row
	// with a flagged one changes that date's aggregate.
	TouchedDates  []time.Time
	TouchedBrands []string
}

// Engine runs incremental merges against an EventStore.
type Engine struct {
	store   EventStore
	overlap time.Duration
	cmp     Comparator
	now     func() time.Time
	logger  *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithComparator overrides the dedup ordering.
func WithComparator(cmp Comparator) Option {
	return func(e *Engine) { e.cmp = cmp }
}

// WithClock overrides the processing-time source used by the quality gate.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine with the given safety overlap behind the watermark.
func New(store EventStore, overlap time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		overlap: overlap,
		cmp:     DefaultComparator,
		now:     time.Now,
		logger:  slog.Default().With("component", "merge-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one merge pass: watermark, candidate window, identity,
// quality flags, in-batch dedup, conflict exclusion, atomic publish.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	result := Result{FlagCounts: make(map[model.QualityFlag]int)}

	watermark, err := e.store.HighWatermark(ctx)
	if err != nil {
		return result, fmt.Errorf("determining high watermark: %w", err)
	}
	result.Watermark = watermark

	// The overlap tolerates late-arriving and re-ingested events without an
	// unbounded rescan. An empty store keeps the zero-time sentinel and
	// selects everything.
	if !watermark.IsZero() {
		result.WindowStart = watermark.Add(-e.overlap)
	}

	candidates, err := e.store.Candidates(ctx, result.WindowStart)
	if err != nil {
		return result, fmt.Errorf("selecting candidate window: %w", err)
	}
	result.Candidates = len(candidates)

	now := e.now()
	groups := make(map[string][]model.Event, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		// Identity is assigned once and never rewritten; candidates that
		// already carry an id keep it.
		if c.EventID == "" {
			c = identity.Resolve(c)
		}
		// Flag, never drop: invalid candidates are persisted with their
		// failing flag so the aggregation boundary can exclude them while
		// the store keeps the audit trail.
		c.QualityFlag = quality.Flag(c, now)
		if _, seen := groups[c.EventID]; !seen {
			order = append(order, c.EventID)
		}
		groups[c.EventID] = append(groups[c.EventID], c)
	}

	winners := make([]model.Event, 0, len(groups))
	for _, id := range order {
		group := groups[id]
		if conflicted(group) {
			result.Conflicts += len(group)
			e.logger.Error("identity conflict, excluding candidates",
				"event_id", id,
				"candidates", len(group),
			)
			continue
		}
		sort.Slice(group, func(i, j int) bool { return e.cmp(group[i], group[j]) })
		winners = append(winners, group[0])
		result.Duplicates += len(group) - 1
	}

	for _, w := range winners {
		result.FlagCounts[w.QualityFlag]++
	}
	result.TouchedDates, result.TouchedBrands = touched(winners)

	stats, err := e.store.Publish(ctx, winners)
	if err != nil {
		return result, fmt.Errorf("publishing merged events: %w", err)
	}
	result.Inserted = stats.Inserted
	result.Replaced = stats.Replaced

	e.logger.Info("merge pass complete",
		"watermark", watermark,
		"window_start", result.WindowStart,
		"candidates", result.Candidates,
		"inserted", result.Inserted,
		"replaced", result.Replaced,
		"duplicates", result.Duplicates,
		"conflicts", result.Conflicts,
	)
	return result, nil
}

// conflicted reports whether candidates sharing an event id disagree on the
// natural key triple. That only happens when upstream identity is corrupt
// (e.g. legacy rows keyed without source), and the safe move is to exclude
// the whole group rather than guess.
func conflicted(group []model.Event) bool {
	head := group[0]
	for _, c := range group[1:] {
		if c.SourceID != head.SourceID ||
			!c.PublishedAt.Equal(head.PublishedAt) ||
			c.Source != head.Source {
			return true
		}
	}
	return false
}

func touched(events []model.Event) (dates []time.Time, brands []string) {
	dateSet := make(map[time.Time]struct{})
	brandSet := make(map[string]struct{})
	for _, e := range events {
		dateSet[e.SentimentDate()] = struct{}{}
		if e.Brand != "" {
			brandSet[e.Brand] = struct{}{}
		}
	}
	for d := range dateSet {
		dates = append(dates, d)
	}
	for b := range brandSet {
		brands = append(brands, b)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	sort.Strings(brands)
	return dates, brands
}
