package chatclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
)

// Broadcast event names on a group's message channel.
const (
	EventMessageInserted = "message-inserted"
	EventMessageUpdated  = "message-updated"
	EventMessageDeleted  = "message-deleted"
)

// Inbound is a validated transport event. The set is closed: MessageInserted,
// MessageUpdated, MessageDeleted, PresenceSync, PresenceJoin and PresenceLeave.
type Inbound interface {
	inbound()
}

// From on the message events is the publisher as stamped by the transport,
// never a value taken from the payload.
type MessageInserted struct {
	Message domain.Message
	From    string
}

type MessageUpdated struct {
	Message domain.Message
	From    string
}

type MessageDeleted struct {
	GroupID   uuid.UUID
	ID        int64
	DeletedAt time.Time
	From      string
}

// PresenceSync, PresenceJoin and PresenceLeave carry the channel's whole
// presence set after the change.
type PresenceSync struct {
	Signals []domain.TypingSignal
}

type PresenceJoin struct {
	Signals []domain.TypingSignal
}

type PresenceLeave struct {
	Signals []domain.TypingSignal
}

func (MessageInserted) inbound() {}
func (MessageUpdated) inbound()  {}
func (MessageDeleted) inbound()  {}
func (PresenceSync) inbound()    {}
func (PresenceJoin) inbound()    {}
func (PresenceLeave) inbound()   {}

// DeletePayload is the body of a message-deleted broadcast.
type DeletePayload struct {
	ID        int64     `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// DecodeInbound validates a raw transport event and rebuilds the domain values
// it carries.
func DecodeInbound(ev transport.Event) (Inbound, error) {
	switch ev.Kind {
	case transport.KindBroadcast:
		return decodeBroadcast(ev)
	case transport.KindPresence:
		signals := decodeSignals(ev.Presence)
		switch ev.Name {
		case transport.PresenceSync:
			return PresenceSync{Signals: signals}, nil
		case transport.PresenceJoin:
			return PresenceJoin{Signals: signals}, nil
		case transport.PresenceLeave:
			return PresenceLeave{Signals: signals}, nil
		}
		return nil, fmt.Errorf("unknown presence event %q", ev.Name)
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func decodeBroadcast(ev transport.Event) (Inbound, error) {
	switch ev.Name {
	case EventMessageInserted, EventMessageUpdated:
		var m domain.Message
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", ev.Name, err)
		}
		if err := validateMessage(&m); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", ev.Name, err)
		}
		if ev.Name == EventMessageInserted {
			return MessageInserted{Message: m, From: ev.From}, nil
		}
		return MessageUpdated{Message: m, From: ev.From}, nil

	case EventMessageDeleted:
		var p DeletePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", ev.Name, err)
		}
		if p.ID <= 0 || p.GroupID == uuid.Nil {
			return nil, fmt.Errorf("invalid %s payload: missing id or group", ev.Name)
		}
		if p.DeletedAt.IsZero() {
			p.DeletedAt = time.Now()
		}
		return MessageDeleted{GroupID: p.GroupID, ID: p.ID, DeletedAt: p.DeletedAt, From: ev.From}, nil
	}
	return nil, fmt.Errorf("unknown broadcast event %q", ev.Name)
}

func validateMessage(m *domain.Message) error {
	switch {
	case m.ID <= 0:
		return fmt.Errorf("missing id")
	case m.GroupID == uuid.Nil:
		return fmt.Errorf("missing group id")
	case m.SenderID == uuid.Nil:
		return fmt.Errorf("missing sender id")
	case m.CreatedAt.IsZero():
		return fmt.Errorf("missing created_at")
	case m.EditCount < 0:
		return fmt.Errorf("negative edit_count")
	}
	if m.Kind == "" {
		m.Kind = domain.MessageKindText
	}
	if !domain.ValidMessageKind(m.Kind) {
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	// pending and failed are local states and never travel
	switch m.Status {
	case "", domain.MessageStatusPending, domain.MessageStatusFailed:
		m.Status = domain.MessageStatusSent
	}
	return nil
}

// decodeSignals keeps the well-formed entries of a presence snapshot, ordered
// by display name for stable rendering.
func decodeSignals(presence map[string]json.RawMessage) []domain.TypingSignal {
	out := make([]domain.TypingSignal, 0, len(presence))
	for _, raw := range presence {
		var sig domain.TypingSignal
		if err := json.Unmarshal(raw, &sig); err != nil || sig.UserID == uuid.Nil {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}
