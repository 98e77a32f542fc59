package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/config"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db  Pinger
	cfg config.ChatConfig
}

func NewHealthHandler(db Pinger, cfg config.ChatConfig) *HealthHandler {
	return &HealthHandler{
		db:  db,
		cfg: cfg,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"service":  "employee-directory-chat",
				"database": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "employee-directory-chat",
	})
}

// ServerInfo tells clients where the realtime endpoint lives and which
// paging and typing parameters the server expects.
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_base":           "/api/v1",
		"ws_path":            "/ws",
		"page_size":          h.cfg.PageSize,
		"typing_timeout_ms":  h.cfg.TypingTimeout.Milliseconds(),
		"max_content_length": h.cfg.MaxContentLength,
	})
}
