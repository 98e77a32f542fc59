package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        int64                  `json:"id"`
	EventTime time.Time              `json:"event_time"`
	ActorID   *uuid.UUID             `json:"actor_id,omitempty"`
	GroupID   *uuid.UUID             `json:"group_id,omitempty"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

const (
	EventTypeLogin          = "LOGIN"
	EventTypeLoginFailed    = "LOGIN_FAILED"
	EventTypeGroupCreated   = "GROUP_CREATED"
	EventTypeMessageEdited  = "MESSAGE_EDITED"
	EventTypeMessageDeleted = "MESSAGE_DELETED"
)
