package domain

import (
	"time"

	"github.com/google/uuid"
)

// TypingSignal is the presence payload a client tracks while composing.
// It is never persisted.
type TypingSignal struct {
	UserID       uuid.UUID `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Typing       bool      `json:"is_typing"`
	LastActivity time.Time `json:"ts"`
}
