package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/repository"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type GroupService interface {
	List(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error)
	Create(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.Group, error)
	MarkRead(ctx context.Context, groupID, employeeID uuid.UUID) error
	// RequireMember returns ErrNotMember unless employeeID belongs to groupID.
	RequireMember(ctx context.Context, groupID, employeeID uuid.UUID) error
}

type groupService struct {
	groupRepo repository.GroupRepository
	audit     AuditService
	log       logger.Logger
}

func NewGroupService(groupRepo repository.GroupRepository, audit AuditService, log logger.Logger) GroupService {
	return &groupService{
		groupRepo: groupRepo,
		audit:     audit,
		log:       log,
	}
}

func (s *groupService) List(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error) {
	groups, err := s.groupRepo.ListForEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (s *groupService) Create(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", apperrors.ErrBadRequest)
	}

	members := make([]uuid.UUID, 0, len(req.MemberIDs))
	seen := map[uuid.UUID]bool{creatorID: true}
	for _, id := range req.MemberIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	now := time.Now()
	g := &domain.Group{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   creatorID,
		MemberCount: len(members) + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groupRepo.Create(ctx, g, members); err != nil {
		return nil, err
	}

	_ = s.audit.LogEvent(ctx, &creatorID, &g.ID, domain.EventTypeGroupCreated, map[string]interface{}{
		"name":    g.Name,
		"members": len(members),
	})
	s.log.Info("Group created", "group_id", g.ID, "created_by", creatorID)
	return g, nil
}

func (s *groupService) MarkRead(ctx context.Context, groupID, employeeID uuid.UUID) error {
	return s.groupRepo.MarkRead(ctx, groupID, employeeID, time.Now())
}

func (s *groupService) RequireMember(ctx context.Context, groupID, employeeID uuid.UUID) error {
	ok, err := s.groupRepo.IsMember(ctx, groupID, employeeID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}
