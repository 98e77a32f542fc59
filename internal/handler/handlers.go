package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/broker"
	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/metrics"
	"employee_directory/internal/middleware"
	"employee_directory/internal/service"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Group     *GroupHandler
	Message   *MessageHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, b broker.Broker, db Pinger, cfg *config.Config, m *metrics.Metrics, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(db, cfg.Chat),
		Auth:      NewAuthHandler(services.Auth, log),
		Group:     NewGroupHandler(services.Group, log),
		Message:   NewMessageHandler(services.Message, log),
		WebSocket: NewWebSocketHandler(services.Auth, services.Group, b, cfg.Chat, cfg.Server.CORSOrigins, m, log),
	}
}

func identity(c *gin.Context) (domain.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		_ = c.Error(apperrors.ErrUnauthorized)
	}
	return id, ok
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(fmt.Errorf("invalid request: %v: %w", err, apperrors.ErrBadRequest))
}
