package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type EmployeeRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error)
	GetByEmail(ctx context.Context, email string) (*domain.Employee, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type employeeRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewEmployeeRepository(db *pgxpool.Pool, log logger.Logger) EmployeeRepository {
	return &employeeRepository{db: db, log: log}
}

const employeeColumns = `id, email, password_hash, display_name, title, department, avatar_url,
	is_active, last_login_at, created_at, updated_at`

func scanEmployee(row pgx.Row) (*domain.Employee, error) {
	e := &domain.Employee{}
	err := row.Scan(
		&e.ID, &e.Email, &e.PasswordHash, &e.DisplayName, &e.Title, &e.Department, &e.AvatarURL,
		&e.IsActive, &e.LastLoginAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *employeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	e, err := scanEmployee(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get employee by ID", "error", err)
		return nil, err
	}
	return e, nil
}

func (r *employeeRepository) GetByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE email = $1`

	e, err := scanEmployee(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get employee by email", "error", err)
		return nil, err
	}
	return e, nil
}

func (r *employeeRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE employees SET last_login_at = $2, updated_at = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		r.log.Error("Failed to update last login", "error", err)
		return err
	}
	return nil
}
