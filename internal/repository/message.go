package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

type MessageRepository interface {
	// Create persists m and fills in its id. A repeated client id from the same
	// sender returns the message stored the first time.
	Create(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// ListPage returns the offset window of newest-first rows in ascending
	// order. Soft deleted rows are included so offsets stay stable, with
	// their content and attachments blanked.
	ListPage(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	UpdateContent(ctx context.Context, id int64, content string, at time.Time) (*domain.Message, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) (*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `m.id, m.group_id, m.sender_id, e.display_name, m.content, m.kind, m.status,
	m.client_id, m.reply_to_id, m.attachments, m.created_at, m.edited_at, m.edit_count, m.deleted_at`

// pageColumns is messageColumns with deleted bodies blanked.
const pageColumns = `m.id, m.group_id, m.sender_id, e.display_name,
	CASE WHEN m.deleted_at IS NULL THEN m.content ELSE '' END AS content,
	m.kind, m.status, m.client_id, m.reply_to_id,
	CASE WHEN m.deleted_at IS NULL THEN m.attachments ELSE '[]'::jsonb END AS attachments,
	m.created_at, m.edited_at, m.edit_count, m.deleted_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var attachments []byte
	err := row.Scan(
		&m.ID, &m.GroupID, &m.SenderID, &m.SenderName, &m.Content, &m.Kind, &m.Status,
		&m.ClientID, &m.ReplyToID, &attachments, &m.CreatedAt, &m.EditedAt, &m.EditCount, &m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	return m, nil
}

func (r *messageRepository) Create(ctx context.Context, m *domain.Message) error {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	var existing *domain.Message
	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO messages (group_id, sender_id, kind, status, content, client_id, reply_to_id, attachments, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (sender_id, client_id) WHERE client_id <> '' DO NOTHING
			RETURNING id, created_at
		`, m.GroupID, m.SenderID, m.Kind, m.Status, m.Content, m.ClientID, m.ReplyToID, raw, m.CreatedAt,
		).Scan(&m.ID, &m.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			existing, err = scanMessage(tx.QueryRow(ctx, `
				SELECT `+messageColumns+`
				FROM messages m JOIN employees e ON e.id = m.sender_id
				WHERE m.sender_id = $1 AND m.client_id = $2
			`, m.SenderID, m.ClientID))
			return err
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE chat_groups SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
			m.GroupID, m.CreatedAt)
		return err
	})
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	if existing != nil {
		r.log.Debug("Duplicate client id, returning stored message", "client_id", m.ClientID, "message_id", existing.ID)
		*m = *existing
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m JOIN employees e ON e.id = m.sender_id WHERE m.id = $1`

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}
	return m, nil
}

func (r *messageRepository) ListPage(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT * FROM (
			SELECT ` + pageColumns + `
			FROM messages m
			JOIN employees e ON e.id = m.sender_id
			WHERE m.group_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2 OFFSET $3
		) page
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, groupID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to iterate messages", "error", err)
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id int64, content string, at time.Time) (*domain.Message, error) {
	query := `
		UPDATE messages SET content = $2, edited_at = $3, edit_count = edit_count + 1
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, content, at)
	if err != nil {
		r.log.Error("Failed to update message", "error", err)
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.ErrMessageDeleted
	}
	return r.GetByID(ctx, id)
}

func (r *messageRepository) SoftDelete(ctx context.Context, id int64, at time.Time) (*domain.Message, error) {
	query := `UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err)
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.ErrMessageDeleted
	}
	return r.GetByID(ctx, id)
}
