package service

import (
	"employee_directory/internal/config"
	"employee_directory/internal/metrics"
	"employee_directory/internal/repository"
	"employee_directory/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Group     GroupService
	Message   MessageService
	RateLimit RateLimitService
	Audit     AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, m *metrics.Metrics, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)
	rateLimit := NewRateLimitService(repos.RateLimit, m, log)
	groups := NewGroupService(repos.Group, audit, log)

	return &Services{
		Auth:      NewAuthService(repos.Employee, audit, cfg.JWT, log),
		Group:     groups,
		Message:   NewMessageService(repos.Message, groups, rateLimit, audit, cfg.Chat, m, log),
		RateLimit: rateLimit,
		Audit:     audit,
	}
}
