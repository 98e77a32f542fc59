package chatclient

import (
	"context"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
)

// API is the request/response surface the engine persists through.
type API interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
	CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*domain.Group, error)
	MarkRead(ctx context.Context, groupID uuid.UUID) error
	ListMessages(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, groupID uuid.UUID, req domain.CreateMessageRequest) (*domain.Message, error)
	UpdateMessage(ctx context.Context, messageID int64, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID int64) (*domain.Message, error)
}

// PageFetcher is the part of API the Pager needs.
type PageFetcher interface {
	ListMessages(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]domain.Message, error)
}
