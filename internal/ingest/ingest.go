// Package ingest consumes raw provider records from Kafka, normalizes them
// into the canonical event shape, and appends them to the intake log. It
// assigns ingestion time on arrival; identity and quality flags are the merge
// engine's job.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/internal/normalize"
	apperrors "github.com/brandintel/sentiment-platform/pkg/errors"
	"github.com/brandintel/sentiment-platform/pkg/kafka"
	"github.com/brandintel/sentiment-platform/pkg/metrics"
	"github.com/brandintel/sentiment-platform/pkg/resilience"
)

// appendTimeout bounds a single intake write so a wedged connection cannot
// stall the consume loop indefinitely.
const appendTimeout = 10 * time.Second

// RawStore is the intake log the service appends normalized records to.
type RawStore interface {
	AppendRaw(ctx context.Context, e model.Event) error
}

// Stats is a snapshot of the service's counters.
type Stats struct {
	Ingested     int64 `json:"ingested"`
	SchemaErrors int64 `json:"schema_errors"`
}

// Service normalizes and persists raw records from the source topics.
type Service struct {
	registry *normalize.Registry
	store    RawStore
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger

	ingested     atomic.Int64
	schemaErrors atomic.Int64
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the ingestion-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an ingest Service.
func New(registry *normalize.Registry, store RawStore, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		metrics:  m,
		now:      time.Now,
		logger:   slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a Kafka MessageHandler for the given source's topic.
//
// Records that fail normalization are counted and dropped, never retried: a
// malformed payload stays malformed, and blocking the partition on it would
// starve everything behind it. Store failures are returned so the message is
// redelivered.
func (s *Service) Handler(source model.Source) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := s.registry.Normalize(source, value)
		if err != nil {
			if errors.Is(err, apperrors.ErrSchema) {
				s.schemaErrors.Add(1)
				s.metrics.RecordsDroppedTotal.WithLabelValues(string(source), "schema").Inc()
				s.logger.Error("dropping record with schema error",
					"source", string(source),
					"key", string(key),
					"error", err,
				)
				return nil
			}
			return fmt.Errorf("normalizing %s record: %w", source, err)
		}

		event.IngestedAt = s.now().UTC()
		err = resilience.WithTimeout(ctx, appendTimeout, "append-raw-event", func(ctx context.Context) error {
			return s.store.AppendRaw(ctx, event)
		})
		if err != nil {
			return fmt.Errorf("persisting %s record: %w", source, err)
		}

		s.ingested.Add(1)
		s.metrics.RecordsIngestedTotal.WithLabelValues(string(source)).Inc()
		s.logger.Debug("record ingested",
			"source", string(source),
			"source_id", event.SourceID,
			"published_at", event.PublishedAt,
		)
		return nil
	}
}

// Stats returns a snapshot of the service's counters.
func (s *Service) Stats() Stats {
	return Stats{
		Ingested:     s.ingested.Load(),
		SchemaErrors: s.schemaErrors.Load(),
	}
}
