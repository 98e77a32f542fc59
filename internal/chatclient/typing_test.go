package chatclient

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"employee_directory/internal/domain"
)

type typingHarness struct {
	clock     *fakeClock
	tracker   *TypingTracker
	published []domain.TypingSignal
	changes   int
	self      domain.Identity
}

func newTypingHarness() *typingHarness {
	h := &typingHarness{clock: newFakeClock(), self: identity("me")}
	h.tracker = NewTypingTracker(TypingOptions{
		Self:      h.self,
		Timeout:   DefaultTypingTimeout,
		Scheduler: h.clock,
		Now:       h.clock.Now,
		Publish:   func(s domain.TypingSignal) { h.published = append(h.published, s) },
		OnChange:  func() { h.changes++ },
	})
	return h
}

func (h *typingHarness) flags() []bool {
	out := make([]bool, len(h.published))
	for i, s := range h.published {
		out[i] = s.Typing
	}
	return out
}

func TestTypingStartStopAutoExpiry(t *testing.T) {
	h := newTypingHarness()

	h.tracker.Input("h")
	h.clock.Advance(500 * time.Millisecond)
	h.tracker.Input("he")
	h.clock.Advance(1500 * time.Millisecond)
	h.tracker.Input("hello")

	require.Equal(t, []bool{true}, h.flags())
	assert.Equal(t, h.self.UserID, h.published[0].UserID)
	assert.Equal(t, "me", h.published[0].DisplayName)
	assert.Equal(t, epoch, h.published[0].LastActivity)

	// expiry counts from the last keystroke
	h.clock.Advance(9 * time.Second)
	assert.Equal(t, []bool{true}, h.flags())
	assert.True(t, h.tracker.Typing())

	h.clock.Advance(time.Second)
	assert.Equal(t, []bool{true, false}, h.flags())
	assert.False(t, h.tracker.Typing())

	h.clock.Advance(time.Minute)
	assert.Equal(t, []bool{true, false}, h.flags())
}

func TestTypingStopTriggers(t *testing.T) {
	t.Run("EmptyInput", func(t *testing.T) {
		h := newTypingHarness()
		h.tracker.Input("a")
		h.tracker.Input("")
		assert.Equal(t, []bool{true, false}, h.flags())

		// a second empty input publishes nothing
		h.tracker.Input("")
		assert.Equal(t, []bool{true, false}, h.flags())
		assert.Equal(t, 0, h.clock.Pending())
	})

	t.Run("Send", func(t *testing.T) {
		h := newTypingHarness()
		h.tracker.Input("a")
		h.tracker.Stop()
		h.clock.Advance(time.Minute)
		assert.Equal(t, []bool{true, false}, h.flags())
	})

	t.Run("TeardownWhileTyping", func(t *testing.T) {
		h := newTypingHarness()
		h.tracker.Input("a")
		h.tracker.Teardown()
		assert.Equal(t, []bool{true, false}, h.flags())
		assert.Equal(t, 0, h.clock.Pending())
	})

	t.Run("TeardownWhileIdle", func(t *testing.T) {
		h := newTypingHarness()
		h.tracker.Teardown()
		assert.Empty(t, h.published)
	})

	t.Run("RestartAfterStop", func(t *testing.T) {
		h := newTypingHarness()
		h.tracker.Input("a")
		h.tracker.Input("")
		h.tracker.Input("b")
		assert.Equal(t, []bool{true, false, true}, h.flags())
	})
}

func TestTypingRefreshWhileActive(t *testing.T) {
	h := newTypingHarness()
	for i := 0; i < 8; i++ {
		h.tracker.Input("typing")
		h.clock.Advance(time.Second)
	}
	// one start plus one refresh after half the timeout
	assert.Equal(t, []bool{true, true}, h.flags())
}

func TestTypingRemote(t *testing.T) {
	h := newTypingHarness()
	ann := domain.TypingSignal{UserID: uuid.New(), DisplayName: "Ann", Typing: true, LastActivity: epoch}
	bob := domain.TypingSignal{UserID: uuid.New(), DisplayName: "Bob", Typing: false, LastActivity: epoch}
	me := domain.TypingSignal{UserID: h.self.UserID, DisplayName: "me", Typing: true, LastActivity: epoch}

	h.tracker.SetRemote([]domain.TypingSignal{ann, bob, me})
	got := h.tracker.Remote()
	require.Len(t, got, 1)
	assert.Equal(t, "Ann", got[0].DisplayName)

	t.Run("SnapshotReplacesList", func(t *testing.T) {
		h.tracker.SetRemote([]domain.TypingSignal{me})
		assert.Empty(t, h.tracker.Remote())
	})

	t.Run("ExpiresWithoutStop", func(t *testing.T) {
		h.tracker.SetRemote([]domain.TypingSignal{ann})
		h.clock.Advance(4 * time.Second)

		// a later snapshot with the same activity does not extend it
		h.tracker.SetRemote([]domain.TypingSignal{ann})
		h.clock.Advance(5 * time.Second)
		assert.Len(t, h.tracker.Remote(), 1)

		changes := h.changes
		h.clock.Advance(time.Second)
		assert.Empty(t, h.tracker.Remote())
		assert.Equal(t, changes+1, h.changes)
	})

	t.Run("FreshActivityExtends", func(t *testing.T) {
		h.tracker.SetRemote([]domain.TypingSignal{ann})
		h.clock.Advance(8 * time.Second)
		refreshed := ann
		refreshed.LastActivity = ann.LastActivity.Add(8 * time.Second)
		h.tracker.SetRemote([]domain.TypingSignal{refreshed})
		h.clock.Advance(8 * time.Second)
		assert.Len(t, h.tracker.Remote(), 1)
	})

	t.Run("TeardownClears", func(t *testing.T) {
		h.tracker.SetRemote([]domain.TypingSignal{ann})
		h.tracker.Teardown()
		assert.Empty(t, h.tracker.Remote())
		assert.Equal(t, 0, h.clock.Pending())
	})
}
