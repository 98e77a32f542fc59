package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/repository"
	"employee_directory/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actorID *uuid.UUID, groupID *uuid.UUID, eventType string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorID *uuid.UUID, groupID *uuid.UUID, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime: time.Now(),
		ActorID:   actorID,
		GroupID:   groupID,
		EventType: eventType,
		Payload:   payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Warn("Failed to write audit event", "event_type", eventType, "error", err)
		return err
	}
	return nil
}
