package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// SystemHandler exposes the liveness and readiness probes.
type SystemHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	logger      Logger
	startTime   time.Time
}

func NewSystemHandler(db *sqlx.DB, redisClient *redis.Client, log Logger) *SystemHandler {
	return &SystemHandler{
		db:          db,
		redisClient: redisClient,
		logger:      log,
		startTime:   time.Now(),
	}
}

// Health reports liveness. Responding at all means the process is up.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"service":        "caisse",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Ready reports readiness: the service only accepts traffic when the
// database answers. Redis is advisory; the engine degrades without it.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Error("Database ping failed", map[string]interface{}{"error": err.Error()})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "reason": "database unavailable"})
		return
	}

	cache := "operational"
	if err := h.redisClient.Ping(r.Context()).Err(); err != nil {
		cache = "degraded"
		h.logger.Warn("Redis ping failed", map[string]interface{}{"error": err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready", "cache": cache})
}
