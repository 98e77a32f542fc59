package chatclient

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
)

// Action is a Store transition. The set is closed: SetAll, Append, Prepend,
// Replace and Remove.
type Action interface {
	action()
}

// SetAll replaces the list of a group with Messages. Unconfirmed local entries
// (negative ids) that the new list does not account for are kept.
type SetAll struct {
	GroupID  uuid.UUID
	Messages []domain.Message
}

// Append inserts Message unless its id is already known.
type Append struct {
	Message domain.Message
}

// Prepend merges an older page into a group.
type Prepend struct {
	GroupID  uuid.UUID
	Messages []domain.Message
}

// Replace swaps the entry with ID for Message. When Message.ID differs from ID
// the entry at ID is a pending record being confirmed.
type Replace struct {
	ID      int64
	Message domain.Message
}

// Remove soft deletes ID in a group.
type Remove struct {
	GroupID uuid.UUID
	ID      int64
	At      time.Time
}

func (SetAll) action()  {}
func (Append) action()  {}
func (Prepend) action() {}
func (Replace) action() {}
func (Remove) action()  {}

// Store holds per-group timelines ordered by (CreatedAt, ID) and unique by ID.
// Deleted entries stay in memory so their ids keep deduplicating, but are
// hidden from Messages. A Store is not safe for concurrent use.
type Store struct {
	groups map[uuid.UUID]*timeline
}

type timeline struct {
	msgs []domain.Message
	ids  map[int64]struct{}
}

func NewStore() *Store {
	return &Store{groups: make(map[uuid.UUID]*timeline)}
}

// Dispatch applies a and reports whether the store changed.
func (s *Store) Dispatch(a Action) bool {
	switch a := a.(type) {
	case SetAll:
		return s.setAll(a.GroupID, a.Messages)
	case Append:
		return s.append(a.Message)
	case Prepend:
		return s.prepend(a.GroupID, a.Messages)
	case Replace:
		return s.replace(a.ID, a.Message)
	case Remove:
		return s.remove(a.GroupID, a.ID, a.At)
	default:
		return false
	}
}

// Messages returns the visible list of a group.
func (s *Store) Messages(groupID uuid.UUID) []domain.Message {
	tl, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, 0, len(tl.msgs))
	for _, m := range tl.msgs {
		if m.DeletedAt == nil {
			out = append(out, m)
		}
	}
	return out
}

// All returns every entry of a group including soft deleted ones.
func (s *Store) All(groupID uuid.UUID) []domain.Message {
	tl, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, len(tl.msgs))
	copy(out, tl.msgs)
	return out
}

func (s *Store) Has(groupID uuid.UUID, id int64) bool {
	tl, ok := s.groups[groupID]
	if !ok {
		return false
	}
	_, ok = tl.ids[id]
	return ok
}

func (s *Store) Get(groupID uuid.UUID, id int64) (domain.Message, bool) {
	tl, ok := s.groups[groupID]
	if !ok {
		return domain.Message{}, false
	}
	i := tl.index(id)
	if i < 0 {
		return domain.Message{}, false
	}
	return tl.msgs[i], true
}

func (s *Store) timeline(groupID uuid.UUID) *timeline {
	tl, ok := s.groups[groupID]
	if !ok {
		tl = &timeline{ids: make(map[int64]struct{})}
		s.groups[groupID] = tl
	}
	return tl
}

func (s *Store) setAll(groupID uuid.UUID, msgs []domain.Message) bool {
	next := &timeline{ids: make(map[int64]struct{}, len(msgs))}
	clientIDs := make(map[string]struct{})
	for _, m := range msgs {
		if next.insert(m) && m.ClientID != "" {
			clientIDs[m.ClientID] = struct{}{}
		}
	}
	if prev, ok := s.groups[groupID]; ok {
		for _, m := range prev.msgs {
			if m.ID >= 0 {
				continue
			}
			if _, confirmed := clientIDs[m.ClientID]; confirmed && m.ClientID != "" {
				continue
			}
			next.insert(m)
		}
	}
	s.groups[groupID] = next
	return true
}

func (s *Store) append(m domain.Message) bool {
	tl := s.timeline(m.GroupID)
	if _, ok := tl.ids[m.ID]; ok {
		return false
	}
	// a canonical record whose client id matches a local pending entry
	// takes that entry's place
	if m.ID > 0 && m.ClientID != "" {
		if i := tl.indexByClientID(m.ClientID); i >= 0 {
			tl.removeAt(i)
		}
	}
	return tl.insert(m)
}

func (s *Store) prepend(groupID uuid.UUID, msgs []domain.Message) bool {
	tl := s.timeline(groupID)
	changed := false
	for _, m := range msgs {
		if m.GroupID != groupID {
			continue
		}
		if tl.insert(m) {
			changed = true
		}
	}
	return changed
}

func (s *Store) replace(id int64, m domain.Message) bool {
	tl, ok := s.groups[m.GroupID]
	if !ok {
		return false
	}
	i := tl.index(id)
	if i < 0 {
		return false
	}
	cur := tl.msgs[i]

	if m.ID != id {
		tl.removeAt(i)
		if j := tl.index(m.ID); j >= 0 {
			// canonical record already present
			tl.msgs[j] = merge(tl.msgs[j], m)
			return true
		}
		return tl.insert(m)
	}

	tl.msgs[i] = merge(cur, m)
	return true
}

// merge applies next over cur for the same id. The creation time is fixed
// once known, deletion is terminal and an older edit never overwrites a newer one.
func merge(cur, next domain.Message) domain.Message {
	if next.EditCount < cur.EditCount {
		return cur
	}
	if !cur.CreatedAt.IsZero() {
		next.CreatedAt = cur.CreatedAt
	}
	if cur.DeletedAt != nil && next.DeletedAt == nil {
		next.DeletedAt = cur.DeletedAt
	}
	return next
}

func (s *Store) remove(groupID uuid.UUID, id int64, at time.Time) bool {
	tl, ok := s.groups[groupID]
	if !ok {
		return false
	}
	i := tl.index(id)
	if i < 0 || tl.msgs[i].DeletedAt != nil {
		return false
	}
	tl.msgs[i].DeletedAt = &at
	return true
}

func less(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (tl *timeline) insert(m domain.Message) bool {
	if _, ok := tl.ids[m.ID]; ok {
		return false
	}
	i := sort.Search(len(tl.msgs), func(i int) bool { return less(m, tl.msgs[i]) })
	tl.msgs = append(tl.msgs, domain.Message{})
	copy(tl.msgs[i+1:], tl.msgs[i:])
	tl.msgs[i] = m
	tl.ids[m.ID] = struct{}{}
	return true
}

func (tl *timeline) removeAt(i int) {
	delete(tl.ids, tl.msgs[i].ID)
	tl.msgs = append(tl.msgs[:i], tl.msgs[i+1:]...)
}

func (tl *timeline) index(id int64) int {
	if _, ok := tl.ids[id]; !ok {
		return -1
	}
	for i := range tl.msgs {
		if tl.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (tl *timeline) indexByClientID(clientID string) int {
	for i := range tl.msgs {
		if tl.msgs[i].ID < 0 && tl.msgs[i].ClientID == clientID {
			return i
		}
	}
	return -1
}
