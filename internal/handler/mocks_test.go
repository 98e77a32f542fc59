package handler_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"employee_directory/internal/domain"
	"employee_directory/internal/service"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*service.LoginResponse, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResponse), args.Error(1)
}

func (m *MockAuthService) ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error) {
	args := m.Called(ctx, tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockAuthService) Me(ctx context.Context, employeeID uuid.UUID) (*domain.Employee, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Employee), args.Error(1)
}

type MockGroupService struct {
	mock.Mock
}

func (m *MockGroupService) List(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Group), args.Error(1)
}

func (m *MockGroupService) Create(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.Group, error) {
	args := m.Called(ctx, creatorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *MockGroupService) MarkRead(ctx context.Context, groupID, employeeID uuid.UUID) error {
	args := m.Called(ctx, groupID, employeeID)
	return args.Error(0)
}

func (m *MockGroupService) RequireMember(ctx context.Context, groupID, employeeID uuid.UUID) error {
	args := m.Called(ctx, groupID, employeeID)
	return args.Error(0)
}

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) List(ctx context.Context, groupID, employeeID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	args := m.Called(ctx, groupID, employeeID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageService) Create(ctx context.Context, groupID uuid.UUID, sender domain.Identity, req domain.CreateMessageRequest) (*domain.Message, error) {
	args := m.Called(ctx, groupID, sender, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageService) Edit(ctx context.Context, messageID int64, employeeID uuid.UUID, content string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, employeeID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageService) Delete(ctx context.Context, messageID int64, employeeID uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, messageID, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

type MockRateLimitService struct {
	mock.Mock
}

func (m *MockRateLimitService) Allow(ctx context.Context, rule domain.RateLimitRule, key string) error {
	args := m.Called(ctx, rule, key)
	return args.Error(0)
}
