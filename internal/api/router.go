package api

import (
	"net/http"
	"time"

	"github.com/brandintel/sentiment-platform/pkg/health"
	"github.com/brandintel/sentiment-platform/pkg/metrics"
	"github.com/brandintel/sentiment-platform/pkg/middleware"
)

// NewRouter builds the API HTTP handler.
//
// Route table:
//
//	GET /api/v1/aggregates/daily  → daily brand aggregates (brand, from, to)
//	GET /api/v1/trends            → trend topics (status)
//	GET /api/v1/competitive       → competitive rankings (category)
//	GET /api/v1/runs/latest       → latest pipeline run summary
//	GET /api/v1/runs              → recent run summaries (limit)
//	GET /health/live              → liveness probe
//	GET /health/ready             → readiness probe (runs dependency checks)
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout → mux.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/aggregates/daily", h.DailyAggregates)
	mux.HandleFunc("GET /api/v1/trends", h.Trends)
	mux.HandleFunc("GET /api/v1/competitive", h.Competitive)
	mux.HandleFunc("GET /api/v1/runs/latest", h.LatestRun)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)

	var chain http.Handler = mux
	chain = middleware.Timeout(requestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
