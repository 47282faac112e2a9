package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/middleware"
)

// RouterConfig carries what the router wires around the handler.
type RouterConfig struct {
	Health         *health.Checker
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	// ServeMetrics exposes /metrics on this mux as well as the metrics
	// server.
	ServeMetrics bool
}

// NewRouter builds the HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST /api/v1/events                                → enqueue a rating event
//	GET  /api/v1/users/{id}/recommendations?count=N    → retrieval policy
//	GET  /api/v1/users/{id}/similar?limit=N            → similarity row
//	GET  /api/v1/users/{id}/similarity/{other}         → live similarity
//	GET  /api/v1/users/{id}/items/{item}/prediction    → predicted score
//	GET  /api/v1/users/{id}/ratings                    → liked and disliked items
//	GET  /api/v1/items/best?limit=N                    → Wilson scoreboard, top
//	GET  /api/v1/items/worst?limit=N                   → Wilson scoreboard, bottom
//	GET  /api/v1/items/most-liked?limit=N              → like counters
//	GET  /api/v1/items/most-disliked?limit=N           → dislike counters
//	GET  /api/v1/items/{id}/stats                      → votes and active rank
//	GET  /health/live, /health/ready                   → probes
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/events", h.PostEvent)

	mux.HandleFunc("GET /api/v1/users/{id}/recommendations", h.Recommendations)
	mux.HandleFunc("GET /api/v1/users/{id}/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/users/{id}/similarity/{other}", h.Similarity)
	mux.HandleFunc("GET /api/v1/users/{id}/items/{item}/prediction", h.Prediction)
	mux.HandleFunc("GET /api/v1/users/{id}/ratings", h.Ratings)

	mux.HandleFunc("GET /api/v1/items/best", h.BestItems)
	mux.HandleFunc("GET /api/v1/items/worst", h.WorstItems)
	mux.HandleFunc("GET /api/v1/items/most-liked", h.MostLikedItems)
	mux.HandleFunc("GET /api/v1/items/most-disliked", h.MostDislikedItems)
	mux.HandleFunc("GET /api/v1/items/{id}/stats", h.ItemStats)

	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}
	if cfg.ServeMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	chain = middleware.Metrics(cfg.Metrics)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
