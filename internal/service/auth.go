package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/repository"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/jwt"
	"employee_directory/pkg/logger"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error)
	Me(ctx context.Context, employeeID uuid.UUID) (*domain.Employee, error)
}

type LoginResponse struct {
	Employee    *domain.Employee `json:"employee"`
	AccessToken string           `json:"access_token"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

type authService struct {
	employeeRepo repository.EmployeeRepository
	audit        AuditService
	jwtCfg       config.JWTConfig
	log          logger.Logger
}

func NewAuthService(employeeRepo repository.EmployeeRepository, audit AuditService, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		employeeRepo: employeeRepo,
		audit:        audit,
		jwtCfg:       jwtCfg,
		log:          log,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", apperrors.ErrBadRequest)
	}

	employee, err := s.employeeRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logFailure(ctx, nil, email, "unknown email")
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		s.logFailure(ctx, &employee.ID, email, "wrong password")
		return nil, apperrors.ErrInvalidCredentials
	}
	if !employee.IsActive {
		s.logFailure(ctx, &employee.ID, email, "inactive")
		return nil, fmt.Errorf("employee account is disabled: %w", apperrors.ErrForbidden)
	}

	token, err := jwt.GenerateAccessToken(employee.ID, employee.Email, employee.DisplayName,
		s.jwtCfg.Issuer, s.jwtCfg.AccessSecret, s.jwtCfg.AccessTTL)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := time.Now()
	if err := s.employeeRepo.UpdateLastLogin(ctx, employee.ID, now); err != nil {
		s.log.Warn("Failed to update last login", "error", err)
	}
	employee.LastLoginAt = &now
	_ = s.audit.LogEvent(ctx, &employee.ID, nil, domain.EventTypeLogin, nil)

	return &LoginResponse{
		Employee:    employee,
		AccessToken: token,
		ExpiresAt:   now.Add(s.jwtCfg.AccessTTL),
	}, nil
}

func (s *authService) logFailure(ctx context.Context, actorID *uuid.UUID, email, reason string) {
	_ = s.audit.LogEvent(ctx, actorID, nil, domain.EventTypeLoginFailed, map[string]interface{}{
		"email":  email,
		"reason": reason,
	})
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error) {
	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	employee, err := s.employeeRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	if !employee.IsActive {
		return nil, apperrors.ErrInvalidToken
	}

	return &domain.Identity{
		UserID:      employee.ID,
		Email:       employee.Email,
		DisplayName: employee.DisplayName,
	}, nil
}

func (s *authService) Me(ctx context.Context, employeeID uuid.UUID) (*domain.Employee, error) {
	return s.employeeRepo.GetByID(ctx, employeeID)
}
