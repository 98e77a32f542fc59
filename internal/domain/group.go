package domain

import (
	"time"

	"github.com/google/uuid"
)

type Group struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CreatedBy   uuid.UUID       `json:"created_by"`
	MemberCount int             `json:"member_count"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MessagePreview is the short form of a group's latest message.
type MessagePreview struct {
	MessageID  int64     `json:"message_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID    uuid.UUID `json:"group_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	Role       string    `json:"role"`
	LastReadAt time.Time `json:"last_read_at"`
	JoinedAt   time.Time `json:"joined_at"`
}

type CreateGroupRequest struct {
	Name        string      `json:"name" binding:"required,max=120"`
	Description string      `json:"description" binding:"max=500"`
	MemberIDs   []uuid.UUID `json:"member_ids"`
}

const (
	GroupRoleOwner  = "owner"
	GroupRoleMember = "member"
)
