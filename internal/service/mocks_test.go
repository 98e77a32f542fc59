package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"employee_directory/internal/domain"
)

type MockEmployeeRepo struct {
	mock.Mock
}

func (m *MockEmployeeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Employee), args.Error(1)
}

func (m *MockEmployeeRepo) GetByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Employee), args.Error(1)
}

func (m *MockEmployeeRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockGroupRepo struct {
	mock.Mock
}

func (m *MockGroupRepo) Create(ctx context.Context, g *domain.Group, memberIDs []uuid.UUID) error {
	args := m.Called(ctx, g, memberIDs)
	return args.Error(0)
}

func (m *MockGroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *MockGroupRepo) ListForEmployee(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Group), args.Error(1)
}

func (m *MockGroupRepo) IsMember(ctx context.Context, groupID, employeeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, groupID, employeeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepo) MarkRead(ctx context.Context, groupID, employeeID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, groupID, employeeID, at)
	return args.Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListPage(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	args := m.Called(ctx, groupID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) UpdateContent(ctx context.Context, id int64, content string, at time.Time) (*domain.Message, error) {
	args := m.Called(ctx, id, content, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) SoftDelete(ctx context.Context, id int64, at time.Time) (*domain.Message, error) {
	args := m.Called(ctx, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) CreateLog(ctx context.Context, log *domain.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

type MockRateLimitRepo struct {
	mock.Mock
}

func (m *MockRateLimitRepo) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}

// auditEvents returns the event types recorded on repo, in order.
func auditEvents(repo *MockAuditRepo) []string {
	var out []string
	for _, call := range repo.Calls {
		if call.Method == "CreateLog" {
			out = append(out, call.Arguments.Get(1).(*domain.AuditLog).EventType)
		}
	}
	return out
}
