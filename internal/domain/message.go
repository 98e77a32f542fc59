package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID          int64        `json:"id"`
	GroupID     uuid.UUID    `json:"group_id"`
	SenderID    uuid.UUID    `json:"sender_id"`
	SenderName  string       `json:"sender_name"`
	Content     string       `json:"content"`
	Kind        string       `json:"kind"`
	Status      string       `json:"status"`
	ClientID    string       `json:"client_id,omitempty"`
	ReplyToID   *int64       `json:"reply_to_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	EditedAt    *time.Time   `json:"edited_at,omitempty"`
	EditCount   int          `json:"edit_count"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// IsDeleted reports whether the message was soft deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Redact clears the body of a deleted message. The row itself stays so page
// offsets do not shift.
func (m *Message) Redact() {
	if m.DeletedAt == nil {
		return
	}
	m.Content = ""
	m.Attachments = nil
}

// Preview builds the group list preview for m.
func (m *Message) Preview() *MessagePreview {
	return &MessagePreview{
		MessageID:  m.ID,
		SenderName: m.SenderName,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

type CreateMessageRequest struct {
	Content     string       `json:"content"`
	Kind        string       `json:"kind"`
	ClientID    string       `json:"client_id,omitempty"`
	ReplyToID   *int64       `json:"reply_to_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindFile   = "file"
	MessageKindSystem = "system"
)

const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

func ValidMessageKind(kind string) bool {
	switch kind {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindSystem:
		return true
	}
	return false
}
