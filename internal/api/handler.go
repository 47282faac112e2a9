// Package api serves the recommendation engine over HTTP: rating events are
// validated and enqueued on Kafka, queries are answered from the store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
)

const (
	defaultCount = 10
	maxCount     = 100
	maxBodyBytes = 64 << 10
)

// EventPublisher enqueues validated events.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Handler implements the HTTP endpoints.
type Handler struct {
	engine    *engine.Engine
	publisher EventPublisher
	logger    *slog.Logger
}

func New(e *engine.Engine, pub EventPublisher) *Handler {
	return &Handler{
		engine:    e,
		publisher: pub,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

// ---------- Events ----------

type eventResponse struct {
	Status string      `json:"status"`
	Type   events.Type `json:"type"`
}

// PostEvent validates the body and publishes it for the rating worker.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var ev events.Event
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ev.Validate(); err != nil {
		var ve *events.ValidationError
		if errors.As(err, &ve) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": ve.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status == http.StatusInternalServerError {
			status = http.StatusServiceUnavailable
		}
		log.Error("publishing event failed", "type", ev.Type, "error", err, "status_code", status)
		h.writeError(w, status, "event not accepted")
		return
	}
	log.Info("event accepted", "type", ev.Type, "user_id", ev.UserID, "item_id", ev.ItemID)
	h.writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", Type: ev.Type})
}

// ---------- Users ----------

type recommendationsResponse struct {
	UserID string   `json:"user_id"`
	Items  []string `json:"items"`
}

// Recommendations answers GET /users/{id}/recommendations?count=N.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	n, ok := h.limit(w, r, "count")
	if !ok {
		return
	}
	items := h.engine.Recommend(r.Context(), user, n)
	h.writeJSON(w, http.StatusOK, recommendationsResponse{UserID: user, Items: items})
}

type similarResponse struct {
	UserID       string   `json:"user_id"`
	MostSimilar  []string `json:"most_similar"`
	LeastSimilar []string `json:"least_similar"`
}

// Similar lists the user's neighbours from their similarity row.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	n, ok := h.limit(w, r, "limit")
	if !ok {
		return
	}
	most, err := h.engine.MostSimilarUsers(r.Context(), user)
	if err != nil {
		h.storeError(w, r, "most similar", err)
		return
	}
	least, err := h.engine.LeastSimilarUsers(r.Context(), user)
	if err != nil {
		h.storeError(w, r, "least similar", err)
		return
	}
	h.writeJSON(w, http.StatusOK, similarResponse{
		UserID:       user,
		MostSimilar:  head(most, n),
		LeastSimilar: head(least, n),
	})
}

type similarityResponse struct {
	UserID     string  `json:"user_id"`
	OtherID    string  `json:"other_id"`
	Similarity float64 `json:"similarity"`
}

// Similarity computes the similarity of two users from their current sets.
func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	other, ok := h.pathID(w, r, "other")
	if !ok {
		return
	}
	s, err := h.engine.Similarity(r.Context(), user, other)
	if err != nil {
		h.storeError(w, r, "similarity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, similarityResponse{UserID: user, OtherID: other, Similarity: s})
}

type predictionResponse struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Prediction returns the predicted score of an item for a user.
func (h *Handler) Prediction(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	item, ok := h.pathID(w, r, "item")
	if !ok {
		return
	}
	score, err := h.engine.PredictedScore(r.Context(), user, item)
	if err != nil {
		h.storeError(w, r, "prediction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, predictionResponse{UserID: user, ItemID: item, Score: score})
}

type ratingsResponse struct {
	UserID   string   `json:"user_id"`
	Liked    []string `json:"liked"`
	Disliked []string `json:"disliked"`
}

// Ratings lists what the user liked and disliked.
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	liked, err := h.engine.AllLikedFor(r.Context(), user)
	if err != nil {
		h.storeError(w, r, "liked", err)
		return
	}
	disliked, err := h.engine.AllDislikedFor(r.Context(), user)
	if err != nil {
		h.storeError(w, r, "disliked", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ratingsResponse{UserID: user, Liked: liked, Disliked: disliked})
}

// ---------- Items ----------

type scoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// BestItems returns the top of the Wilson scoreboard with scores.
func (h *Handler) BestItems(w http.ResponseWriter, r *http.Request) {
	n, ok := h.limit(w, r, "limit")
	if !ok {
		return
	}
	zs, err := h.engine.BestRatedWithScores(r.Context(), n)
	if err != nil {
		h.storeError(w, r, "best rated", err)
		return
	}
	items := make([]scoredItem, len(zs))
	for i, z := range zs {
		items[i] = scoredItem{ItemID: z.Member, Score: z.Score}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WorstItems returns the bottom of the Wilson scoreboard.
func (h *Handler) WorstItems(w http.ResponseWriter, r *http.Request) {
	h.ranking(w, r, "worst rated", h.engine.WorstRated)
}

// MostLikedItems ranks items by like count.
func (h *Handler) MostLikedItems(w http.ResponseWriter, r *http.Request) {
	h.ranking(w, r, "most liked", h.engine.MostLiked)
}

// MostDislikedItems ranks items by dislike count.
func (h *Handler) MostDislikedItems(w http.ResponseWriter, r *http.Request) {
	h.ranking(w, r, "most disliked", h.engine.MostDisliked)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) ([]string, error)) {
	n, ok := h.limit(w, r, "limit")
	if !ok {
		return
	}
	items, err := fn(r.Context())
	if err != nil {
		h.storeError(w, r, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": head(items, n)})
}

type itemStatsResponse struct {
	ItemID   string              `json:"item_id"`
	Likes    int64               `json:"likes"`
	Dislikes int64               `json:"dislikes"`
	Active   engine.RankAndCount `json:"active"`
}

// ItemStats reports vote totals and the item's place in the active index.
func (h *Handler) ItemStats(w http.ResponseWriter, r *http.Request) {
	item, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	likes, err := h.engine.LikedCount(ctx, item)
	if err != nil {
		h.storeError(w, r, "liked count", err)
		return
	}
	dislikes, err := h.engine.DislikedCount(ctx, item)
	if err != nil {
		h.storeError(w, r, "disliked count", err)
		return
	}
	rc, err := h.engine.ActiveItemRankAndCount(ctx, item)
	if err != nil {
		h.storeError(w, r, "active rank", err)
		return
	}
	h.writeJSON(w, http.StatusOK, itemStatsResponse{ItemID: item, Likes: likes, Dislikes: dislikes, Active: rc})
}

// ---------- Helpers ----------

// pathID reads a path parameter, rejecting ids that would break the key
// namespace.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(r.PathValue(name))
	if id == "" || strings.Contains(id, ":") || len(id) > 256 {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return id, true
}

// limit parses a positive query parameter, defaulting to defaultCount and
// capped at maxCount.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultCount, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		h.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return min(n, maxCount), true
}

func head(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error("query failed", "op", op, "error", err, "status_code", status)
	h.writeError(w, status, op+" failed")
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
