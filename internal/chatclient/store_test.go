package chatclient

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"employee_directory/internal/domain"
)

func TestStoreSetAll(t *testing.T) {
	g := uuid.New()
	s := NewStore()

	s.Dispatch(SetAll{GroupID: g, Messages: []domain.Message{
		msg(g, 3, epoch.Add(3*time.Second)),
		msg(g, 1, epoch.Add(time.Second)),
		msg(g, 2, epoch.Add(2*time.Second)),
		msg(g, 1, epoch.Add(time.Second)),
	}})
	assert.Equal(t, []int64{1, 2, 3}, ids(s.Messages(g)))

	s.Dispatch(SetAll{GroupID: g, Messages: []domain.Message{msg(g, 9, epoch)}})
	assert.Equal(t, []int64{9}, ids(s.Messages(g)))
}

func TestStoreSetAllKeepsUnconfirmed(t *testing.T) {
	g := uuid.New()
	s := NewStore()

	pending := msg(g, -1, epoch.Add(time.Minute))
	pending.Status = domain.MessageStatusPending
	pending.ClientID = "c-1"
	confirmed := msg(g, -2, epoch.Add(time.Minute))
	confirmed.ClientID = "c-2"
	s.Dispatch(Append{Message: pending})
	s.Dispatch(Append{Message: confirmed})

	canonical := msg(g, 10, epoch)
	canonical.ClientID = "c-2"
	s.Dispatch(SetAll{GroupID: g, Messages: []domain.Message{canonical}})

	assert.Equal(t, []int64{10, -1}, ids(s.Messages(g)))
}

func TestStoreAppend(t *testing.T) {
	g := uuid.New()
	s := NewStore()

	assert.True(t, s.Dispatch(Append{Message: msg(g, 2, epoch.Add(2*time.Second))}))
	assert.True(t, s.Dispatch(Append{Message: msg(g, 1, epoch.Add(time.Second))}))
	assert.False(t, s.Dispatch(Append{Message: msg(g, 2, epoch.Add(2*time.Second))}))

	assert.Equal(t, []int64{1, 2}, ids(s.Messages(g)))
}

func TestStoreAppendTakesOverPendingByClientID(t *testing.T) {
	g := uuid.New()
	s := NewStore()

	pending := msg(g, -1, epoch)
	pending.Status = domain.MessageStatusPending
	pending.ClientID = "abc"
	s.Dispatch(Append{Message: pending})

	canonical := msg(g, 501, epoch.Add(time.Second))
	canonical.ClientID = "abc"
	require.True(t, s.Dispatch(Append{Message: canonical}))

	assert.Equal(t, []int64{501}, ids(s.Messages(g)))
}

func TestStorePrepend(t *testing.T) {
	g := uuid.New()
	s := NewStore()
	s.Dispatch(SetAll{GroupID: g, Messages: []domain.Message{
		msg(g, 5, epoch.Add(5*time.Second)),
		msg(g, 6, epoch.Add(6*time.Second)),
	}})

	changed := s.Dispatch(Prepend{GroupID: g, Messages: []domain.Message{
		msg(g, 3, epoch.Add(3*time.Second)),
		msg(g, 4, epoch.Add(4*time.Second)),
		msg(g, 5, epoch.Add(5*time.Second)),
	}})
	assert.True(t, changed)
	assert.Equal(t, []int64{3, 4, 5, 6}, ids(s.Messages(g)))

	assert.False(t, s.Dispatch(Prepend{GroupID: g, Messages: []domain.Message{msg(g, 4, epoch.Add(4*time.Second))}}))
}

func TestStoreReplace(t *testing.T) {
	g := uuid.New()

	t.Run("PendingSwappedInPlace", func(t *testing.T) {
		s := NewStore()
		s.Dispatch(Append{Message: msg(g, 1, epoch)})
		pending := msg(g, -1, epoch.Add(time.Minute))
		pending.Status = domain.MessageStatusPending
		s.Dispatch(Append{Message: pending})

		canonical := msg(g, 501, epoch.Add(time.Minute+time.Second))
		require.True(t, s.Dispatch(Replace{ID: -1, Message: canonical}))

		got := s.Messages(g)
		assert.Equal(t, []int64{1, 501}, ids(got))
		assert.Equal(t, domain.MessageStatusSent, got[1].Status)
		assert.False(t, s.Has(g, -1))
	})

	t.Run("CanonicalAlreadyPresent", func(t *testing.T) {
		s := NewStore()
		pending := msg(g, -1, epoch)
		s.Dispatch(Append{Message: pending})
		s.Dispatch(Append{Message: msg(g, 501, epoch)})

		require.True(t, s.Dispatch(Replace{ID: -1, Message: msg(g, 501, epoch)}))
		assert.Equal(t, []int64{501}, ids(s.Messages(g)))
	})

	t.Run("EditPreservesIDAndCreatedAt", func(t *testing.T) {
		s := NewStore()
		orig := msg(g, 7, epoch)
		s.Dispatch(Append{Message: orig})

		edited := orig
		edited.Content = "edited"
		edited.EditCount = 1
		edited.CreatedAt = epoch.Add(time.Hour)
		require.True(t, s.Dispatch(Replace{ID: 7, Message: edited}))

		got, ok := s.Get(g, 7)
		require.True(t, ok)
		assert.Equal(t, "edited", got.Content)
		assert.Equal(t, 1, got.EditCount)
		assert.Equal(t, epoch, got.CreatedAt)
	})

	t.Run("OlderEditIgnored", func(t *testing.T) {
		s := NewStore()
		cur := msg(g, 7, epoch)
		cur.Content = "v2"
		cur.EditCount = 2
		s.Dispatch(Append{Message: cur})

		old := cur
		old.Content = "v1"
		old.EditCount = 1
		s.Dispatch(Replace{ID: 7, Message: old})

		got, _ := s.Get(g, 7)
		assert.Equal(t, "v2", got.Content)
	})

	t.Run("Absent", func(t *testing.T) {
		s := NewStore()
		assert.False(t, s.Dispatch(Replace{ID: 9, Message: msg(g, 9, epoch)}))
		assert.Empty(t, s.Messages(g))
	})
}

func TestStoreRemove(t *testing.T) {
	g := uuid.New()
	s := NewStore()
	s.Dispatch(SetAll{GroupID: g, Messages: []domain.Message{msg(g, 1, epoch), msg(g, 2, epoch.Add(time.Second))}})

	assert.True(t, s.Dispatch(Remove{GroupID: g, ID: 1, At: epoch}))
	assert.Equal(t, []int64{2}, ids(s.Messages(g)))

	// duplicate delete leaves the list unchanged
	assert.False(t, s.Dispatch(Remove{GroupID: g, ID: 1, At: epoch}))
	assert.Len(t, s.Messages(g), 1)
	assert.False(t, s.Dispatch(Remove{GroupID: g, ID: 99, At: epoch}))

	// removed from view, not from memory
	assert.Len(t, s.All(g), 2)
	assert.False(t, s.Dispatch(Append{Message: msg(g, 1, epoch)}))

	// a late update does not resurrect a deleted message
	upd := msg(g, 1, epoch)
	upd.EditCount = 3
	s.Dispatch(Replace{ID: 1, Message: upd})
	assert.Equal(t, []int64{2}, ids(s.Messages(g)))
}

func TestStoreGroupsAreIsolated(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	s := NewStore()
	s.Dispatch(Append{Message: msg(a, 1, epoch)})
	s.Dispatch(Append{Message: msg(b, 2, epoch)})

	assert.Equal(t, []int64{1}, ids(s.Messages(a)))
	assert.Equal(t, []int64{2}, ids(s.Messages(b)))
	assert.False(t, s.Dispatch(Remove{GroupID: a, ID: 2, At: epoch}))
}
