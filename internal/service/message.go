package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/metrics"
	"employee_directory/internal/repository"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

const maxPageSize = 100

type MessageService interface {
	List(ctx context.Context, groupID, employeeID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	Create(ctx context.Context, groupID uuid.UUID, sender domain.Identity, req domain.CreateMessageRequest) (*domain.Message, error)
	Edit(ctx context.Context, messageID int64, employeeID uuid.UUID, content string) (*domain.Message, error)
	Delete(ctx context.Context, messageID int64, employeeID uuid.UUID) (*domain.Message, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	groups      GroupService
	rateLimit   RateLimitService
	audit       AuditService
	cfg         config.ChatConfig
	metrics     *metrics.Metrics
	log         logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	groups GroupService,
	rateLimit RateLimitService,
	audit AuditService,
	cfg config.ChatConfig,
	m *metrics.Metrics,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		groups:      groups,
		rateLimit:   rateLimit,
		audit:       audit,
		cfg:         cfg,
		metrics:     m,
		log:         log,
	}
}

func (s *messageService) List(ctx context.Context, groupID, employeeID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if err := s.groups.RequireMember(ctx, groupID, employeeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	messages, err := s.messageRepo.ListPage(ctx, groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		m.Redact()
	}
	return messages, nil
}

func (s *messageService) validContent(content string, attachments int) error {
	if strings.TrimSpace(content) == "" && attachments == 0 {
		return apperrors.ErrEmptyMessage
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return apperrors.ErrContentTooLong
	}
	return nil
}

func (s *messageService) Create(ctx context.Context, groupID uuid.UUID, sender domain.Identity, req domain.CreateMessageRequest) (*domain.Message, error) {
	if err := s.validContent(req.Content, len(req.Attachments)); err != nil {
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.MessageKindText
	}
	if !domain.ValidMessageKind(kind) || kind == domain.MessageKindSystem {
		return nil, fmt.Errorf("invalid message kind %q: %w", kind, apperrors.ErrBadRequest)
	}
	if err := s.groups.RequireMember(ctx, groupID, sender.UserID); err != nil {
		return nil, err
	}

	rule := domain.RateLimitRule{Scope: domain.RateLimitScopeSend, Limit: s.cfg.SendLimitPerMinute, Window: time.Minute}
	if err := s.rateLimit.Allow(ctx, rule, sender.UserID.String()); err != nil {
		return nil, err
	}

	if req.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.GroupID != groupID {
			return nil, fmt.Errorf("reply target is in another group: %w", apperrors.ErrBadRequest)
		}
	}

	m := &domain.Message{
		GroupID:     groupID,
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		Content:     req.Content,
		Kind:        kind,
		Status:      domain.MessageStatusSent,
		ClientID:    req.ClientID,
		ReplyToID:   req.ReplyToID,
		Attachments: req.Attachments,
		CreatedAt:   time.Now(),
	}
	if err := s.messageRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MessagesCreated.Inc()
	}
	return m, nil
}

// owned loads messageID and checks that employeeID may still change it.
func (s *messageService) owned(ctx context.Context, messageID int64, employeeID uuid.UUID) (*domain.Message, error) {
	m, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != employeeID {
		return nil, apperrors.ErrNotSender
	}
	if m.IsDeleted() {
		return nil, apperrors.ErrMessageDeleted
	}
	if err := s.groups.RequireMember(ctx, m.GroupID, employeeID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *messageService) Edit(ctx context.Context, messageID int64, employeeID uuid.UUID, content string) (*domain.Message, error) {
	m, err := s.owned(ctx, messageID, employeeID)
	if err != nil {
		return nil, err
	}
	if err := s.validContent(content, len(m.Attachments)); err != nil {
		return nil, err
	}

	updated, err := s.messageRepo.UpdateContent(ctx, messageID, content, time.Now())
	if err != nil {
		return nil, err
	}

	_ = s.audit.LogEvent(ctx, &employeeID, &m.GroupID, domain.EventTypeMessageEdited, map[string]interface{}{
		"message_id": messageID,
		"edit_count": updated.EditCount,
	})
	return updated, nil
}

func (s *messageService) Delete(ctx context.Context, messageID int64, employeeID uuid.UUID) (*domain.Message, error) {
	m, err := s.owned(ctx, messageID, employeeID)
	if err != nil {
		return nil, err
	}

	deleted, err := s.messageRepo.SoftDelete(ctx, messageID, time.Now())
	if err != nil {
		return nil, err
	}

	_ = s.audit.LogEvent(ctx, &employeeID, &m.GroupID, domain.EventTypeMessageDeleted, map[string]interface{}{
		"message_id": messageID,
	})
	deleted.Redact()
	return deleted, nil
}
