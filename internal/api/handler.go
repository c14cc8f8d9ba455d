package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
	apperrors "github.com/brandintel/sentiment-platform/pkg/errors"
	"github.com/brandintel/sentiment-platform/pkg/logger"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// AggregateReader serves the derived tables.
type AggregateReader interface {
	DailyRange(ctx context.Context, brand string, from, to time.Time) ([]model.DailyBrandAggregate, error)
	TrendTopics(ctx context.Context, status string) ([]model.TrendTopicAggregate, error)
	Competitive(ctx context.Context, category string) ([]model.CompetitiveRanking, error)
}

// RunReader serves pipeline run summaries.
type RunReader interface {
	LatestSummary(ctx context.Context) (*model.RunSummary, error)
	ListSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)
}

// Handler serves the read API.
type Handler struct {
	aggregates AggregateReader
	runs       RunReader
	cache      *ResponseCache
	logger     *slog.Logger
}

// New creates a Handler. A nil cache disables response caching.
func New(aggregates AggregateReader, runs RunReader, cache *ResponseCache) *Handler {
	return &Handler{
		aggregates: aggregates,
		runs:       runs,
		cache:      cache,
		logger:     slog.Default().With("component", "api-handler"),
	}
}

// DailyAggregates serves GET /api/v1/aggregates/daily?brand=X&from=Y&to=Z.
// The range defaults to the last 30 days.
func (h *Handler) DailyAggregates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	brand := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("brand")))
	if brand == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'brand' is required")
		return
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -defaultRangeDays)
	var err error
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			h.writeError(w, http.StatusBadRequest, "parameter 'to' must be YYYY-MM-DD")
			return
		}
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			h.writeError(w, http.StatusBadRequest, "parameter 'from' must be YYYY-MM-DD")
			return
		}
	}
	if from.After(to) {
		h.writeError(w, http.StatusBadRequest, "'from' must not be after 'to'")
		return
	}

	key := fmt.Sprintf("daily|%s|%s|%s", brand, from.Format(dateLayout), to.Format(dateLayout))
	data, hit, err := h.cached(ctx, key, func() (any, error) {
		rows, err := h.aggregates.DailyRange(ctx, brand, from, to)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"brand":      brand,
			"from":       from.Format(dateLayout),
			"to":         to.Format(dateLayout),
			"count":      len(rows),
			"aggregates": rows,
		}, nil
	})
	if err != nil {
		log.Error("daily aggregates query failed", "brand", brand, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "failed to load daily aggregates")
		return
	}
	h.writeRaw(w, data, hit)
}

// Trends serves GET /api/v1/trends?status=HOT.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	switch model.TrendStatus(status) {
	case "", model.TrendHot, model.TrendTrending, model.TrendStable, model.TrendEmerging:
	default:
		h.writeError(w, http.StatusBadRequest, "unknown trend status")
		return
	}

	data, hit, err := h.cached(ctx, "trends|"+status, func() (any, error) {
		rows, err := h.aggregates.TrendTopics(ctx, status)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"count":  len(rows),
			"topics": rows,
		}, nil
	})
	if err != nil {
		log.Error("trend query failed", "status", status, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "failed to load trend topics")
		return
	}
	h.writeRaw(w, data, hit)
}

// Competitive serves GET /api/v1/competitive?category=BEVERAGES.
func (h *Handler) Competitive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	category := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("category")))

	data, hit, err := h.cached(ctx, "competitive|"+category, func() (any, error) {
		rows, err := h.aggregates.Competitive(ctx, category)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"count":    len(rows),
			"rankings": rows,
		}, nil
	})
	if err != nil {
		log.Error("competitive query failed", "category", category, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "failed to load competitive rankings")
		return
	}
	h.writeRaw(w, data, hit)
}

// LatestRun serves GET /api/v1/runs/latest. Run summaries are never cached;
// operators polling them want the live answer.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	summary, err := h.runs.LatestSummary(ctx)
	if err != nil {
		log.Error("latest run query failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "failed to load latest run")
		return
	}
	if summary == nil {
		h.writeError(w, http.StatusNotFound, "no completed runs")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ListRuns serves GET /api/v1/runs?limit=N, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > maxRunsLimit {
			parsed = maxRunsLimit
		}
		limit = parsed
	}

	summaries, err := h.runs.ListSummaries(ctx, limit)
	if err != nil {
		log.Error("run list query failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "failed to list runs")
		return
	}
	if summaries == nil {
		summaries = []model.RunSummary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count": len(summaries),
		"runs":  summaries,
	})
}

// cached routes the computation through the response cache when one is
// configured.
func (h *Handler) cached(ctx context.Context, key string, compute func() (any, error)) ([]byte, bool, error) {
	if h.cache != nil {
		return h.cache.GetOrCompute(ctx, key, compute)
	}
	result, err := compute()
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling response: %w", err)
	}
	return data, false, nil
}

func (h *Handler) writeRaw(w http.ResponseWriter, data []byte, cacheHit bool) {
	w.Header().Set("Content-Type", "application/json")
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
