package chatclient

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
)

// Draft is a compose action.
type Draft struct {
	Content     string
	Kind        string
	ReplyToID   *int64
	Attachments []domain.Attachment
}

// Sender runs the optimistic half of send, edit and delete against the Store.
// The persistence request itself is made by the caller between Begin and
// Complete.
type Sender struct {
	store    *Store
	self     domain.Identity
	maxLen   int
	now      func() time.Time
	clientID func() string
	lastTemp int64
}

func NewSender(store *Store, self domain.Identity, maxLen int, now func() time.Time) *Sender {
	if now == nil {
		now = time.Now
	}
	return &Sender{
		store:    store,
		self:     self,
		maxLen:   maxLen,
		now:      now,
		clientID: uuid.NewString,
	}
}

func (s *Sender) validContent(content string, attachments int) error {
	if strings.TrimSpace(content) == "" && attachments == 0 {
		return apperrors.ErrEmptyMessage
	}
	if s.maxLen > 0 && utf8.RuneCountInString(content) > s.maxLen {
		return apperrors.ErrContentTooLong
	}
	return nil
}

// Begin validates d and inserts a pending message under a negative temporary
// id. Nothing changes when validation fails.
func (s *Sender) Begin(groupID uuid.UUID, d Draft) (domain.Message, domain.CreateMessageRequest, error) {
	if err := s.validContent(d.Content, len(d.Attachments)); err != nil {
		return domain.Message{}, domain.CreateMessageRequest{}, err
	}
	kind := d.Kind
	if kind == "" {
		kind = domain.MessageKindText
	}
	if !domain.ValidMessageKind(kind) {
		return domain.Message{}, domain.CreateMessageRequest{}, apperrors.ErrBadRequest
	}

	s.lastTemp--
	pending := domain.Message{
		ID:          s.lastTemp,
		GroupID:     groupID,
		SenderID:    s.self.UserID,
		SenderName:  s.self.DisplayName,
		Content:     d.Content,
		Kind:        kind,
		Status:      domain.MessageStatusPending,
		ClientID:    s.clientID(),
		ReplyToID:   d.ReplyToID,
		Attachments: d.Attachments,
		CreatedAt:   s.now(),
	}
	s.store.Dispatch(Append{Message: pending})

	req := domain.CreateMessageRequest{
		Content:     d.Content,
		Kind:        kind,
		ClientID:    pending.ClientID,
		ReplyToID:   d.ReplyToID,
		Attachments: d.Attachments,
	}
	return pending, req, nil
}

// Complete reconciles pending with the outcome of its persistence request and
// returns the entry now in the store. On failure the pending entry turns
// failed in place.
func (s *Sender) Complete(pending domain.Message, canonical *domain.Message, err error) domain.Message {
	if err != nil || canonical == nil {
		failed := pending
		failed.Status = domain.MessageStatusFailed
		s.store.Dispatch(Replace{ID: pending.ID, Message: failed})
		return failed
	}

	msg := *canonical
	if msg.Status == "" || msg.Status == domain.MessageStatusPending {
		msg.Status = domain.MessageStatusSent
	}
	if msg.ClientID == "" {
		msg.ClientID = pending.ClientID
	}
	if !s.store.Dispatch(Replace{ID: pending.ID, Message: msg}) {
		s.store.Dispatch(Append{Message: msg})
	}
	return msg
}

func (s *Sender) editable(groupID uuid.UUID, id int64) (domain.Message, error) {
	if id < 0 {
		return domain.Message{}, ErrNotConfirmed
	}
	m, ok := s.store.Get(groupID, id)
	if !ok {
		return domain.Message{}, apperrors.ErrMessageNotFound
	}
	if m.DeletedAt != nil {
		return domain.Message{}, apperrors.ErrMessageDeleted
	}
	if m.SenderID != s.self.UserID {
		return domain.Message{}, apperrors.ErrNotSender
	}
	return m, nil
}

// BeginEdit checks that id can be edited to content. The store is not touched
// until CompleteEdit.
func (s *Sender) BeginEdit(groupID uuid.UUID, id int64, content string) (domain.Message, error) {
	m, err := s.editable(groupID, id)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.validContent(content, len(m.Attachments)); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

func (s *Sender) CompleteEdit(canonical domain.Message) bool {
	return s.store.Dispatch(Replace{ID: canonical.ID, Message: canonical})
}

func (s *Sender) BeginDelete(groupID uuid.UUID, id int64) (domain.Message, error) {
	return s.editable(groupID, id)
}

func (s *Sender) CompleteDelete(groupID uuid.UUID, id int64, at time.Time) bool {
	return s.store.Dispatch(Remove{GroupID: groupID, ID: id, At: at})
}
