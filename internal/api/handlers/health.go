package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewHealthHandler checks the given dependencies; nil ones are reported as
// not configured.
func NewHealthHandler(db *gorm.DB, redis *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	checks["database"] = "not configured"
	if h.db != nil {
		if err := h.pingDB(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	checks["redis"] = "not configured"
	if h.redis != nil {
		if err := h.pingRedis(r.Context()); err != nil {
			checks["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	dto.JSON(w, statusCode, map[string]interface{}{
		"status":  status,
		"service": "scriptflow-api",
		"checks":  checks,
	})
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	dto.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.pingDB(r.Context()); err != nil {
			dto.ErrorResponse(w, http.StatusServiceUnavailable, "database not ready: "+err.Error())
			return
		}
	}

	if h.redis != nil {
		if err := h.pingRedis(r.Context()); err != nil {
			dto.ErrorResponse(w, http.StatusServiceUnavailable, "redis not ready: "+err.Error())
			return
		}
	}

	dto.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) pingRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.redis.Ping(ctx).Err()
}
