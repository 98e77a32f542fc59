package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type GroupRepository interface {
	// Create inserts g with its owner and members in one transaction.
	Create(ctx context.Context, g *domain.Group, memberIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error)
	// ListForEmployee returns the employee's groups, latest activity first,
	// with the last message preview and unread count filled in.
	ListForEmployee(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error)
	IsMember(ctx context.Context, groupID, employeeID uuid.UUID) (bool, error)
	MarkRead(ctx context.Context, groupID, employeeID uuid.UUID, at time.Time) error
}

type groupRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewGroupRepository(db *pgxpool.Pool, log logger.Logger) GroupRepository {
	return &groupRepository{db: db, log: log}
}

func (r *groupRepository) Create(ctx context.Context, g *domain.Group, memberIDs []uuid.UUID) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO chat_groups (id, name, description, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, g.ID, g.Name, g.Description, g.CreatedBy, g.CreatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO group_members (group_id, employee_id, role, last_read_at, joined_at)
			VALUES ($1, $2, $3, $4, $4)
		`, g.ID, g.CreatedBy, domain.GroupRoleOwner, g.CreatedAt)
		for _, id := range memberIDs {
			if id == g.CreatedBy {
				continue
			}
			batch.Queue(`
				INSERT INTO group_members (group_id, employee_id, role, last_read_at, joined_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT DO NOTHING
			`, g.ID, id, domain.GroupRoleMember, g.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			r.log.Warn("Group references unknown employee", "constraint", pgErr.ConstraintName)
			return fmt.Errorf("unknown member: %w", apperrors.ErrBadRequest)
		}
		r.log.Error("Failed to create group", "error", err)
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.created_by, g.created_at, g.updated_at,
		       (SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id)
		FROM chat_groups g
		WHERE g.id = $1
	`

	g := &domain.Group{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &g.MemberCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		r.log.Error("Failed to get group", "error", err)
		return nil, err
	}
	return g, nil
}

func (r *groupRepository) ListForEmployee(ctx context.Context, employeeID uuid.UUID) ([]*domain.Group, error) {
	query := `
		SELECT g.id, g.name, g.description, g.created_by, g.created_at, g.updated_at,
		       (SELECT COUNT(*) FROM group_members gm2 WHERE gm2.group_id = g.id),
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.group_id = g.id AND m.deleted_at IS NULL
		           AND m.created_at > gm.last_read_at AND m.sender_id <> gm.employee_id),
		       lm.id, lm.display_name, lm.content, lm.created_at
		FROM group_members gm
		JOIN chat_groups g ON g.id = gm.group_id
		LEFT JOIN LATERAL (
			SELECT m.id, e.display_name, m.content, m.created_at
			FROM messages m
			JOIN employees e ON e.id = m.sender_id
			WHERE m.group_id = g.id AND m.deleted_at IS NULL
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE gm.employee_id = $1
		ORDER BY g.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, employeeID)
	if err != nil {
		r.log.Error("Failed to list groups", "error", err)
		return nil, err
	}
	defer rows.Close()

	groups := make([]*domain.Group, 0)
	for rows.Next() {
		g := &domain.Group{}
		var (
			lastID      *int64
			lastSender  *string
			lastContent *string
			lastAt      *time.Time
		)
		err := rows.Scan(
			&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt,
			&g.MemberCount, &g.UnreadCount, &lastID, &lastSender, &lastContent, &lastAt,
		)
		if err != nil {
			r.log.Error("Failed to scan group", "error", err)
			return nil, err
		}
		if lastID != nil {
			g.LastMessage = &domain.MessagePreview{
				MessageID:  *lastID,
				SenderName: *lastSender,
				Content:    *lastContent,
				CreatedAt:  *lastAt,
			}
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to iterate groups", "error", err)
		return nil, err
	}
	return groups, nil
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, employeeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND employee_id = $2)`

	var ok bool
	if err := r.db.QueryRow(ctx, query, groupID, employeeID).Scan(&ok); err != nil {
		r.log.Error("Failed to check membership", "error", err)
		return false, err
	}
	return ok, nil
}

func (r *groupRepository) MarkRead(ctx context.Context, groupID, employeeID uuid.UUID, at time.Time) error {
	query := `
		UPDATE group_members SET last_read_at = GREATEST(last_read_at, $3)
		WHERE group_id = $1 AND employee_id = $2
	`

	tag, err := r.db.Exec(ctx, query, groupID, employeeID, at)
	if err != nil {
		r.log.Error("Failed to mark group read", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotMember
	}
	return nil
}
