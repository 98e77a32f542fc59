package chatclient

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
)

func broadcastEvent(t *testing.T, name string, payload any) transport.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return transport.Event{Kind: transport.KindBroadcast, Name: name, Payload: raw}
}

func TestDecodeInbound(t *testing.T) {
	g := uuid.New()

	t.Run("Inserted", func(t *testing.T) {
		m := msg(g, 12, epoch)
		m.Kind = ""
		m.Status = domain.MessageStatusPending

		ev := broadcastEvent(t, EventMessageInserted, m)
		ev.From = m.SenderID.String()
		in, err := DecodeInbound(ev)
		require.NoError(t, err)
		ins, ok := in.(MessageInserted)
		require.True(t, ok)
		assert.Equal(t, int64(12), ins.Message.ID)
		assert.Equal(t, m.SenderID.String(), ins.From)
		assert.Equal(t, domain.MessageKindText, ins.Message.Kind)
		assert.Equal(t, domain.MessageStatusSent, ins.Message.Status)
	})

	t.Run("Updated", func(t *testing.T) {
		in, err := DecodeInbound(broadcastEvent(t, EventMessageUpdated, msg(g, 12, epoch)))
		require.NoError(t, err)
		assert.IsType(t, MessageUpdated{}, in)
	})

	t.Run("Deleted", func(t *testing.T) {
		in, err := DecodeInbound(broadcastEvent(t, EventMessageDeleted, DeletePayload{ID: 12, GroupID: g, DeletedAt: epoch}))
		require.NoError(t, err)
		assert.Equal(t, MessageDeleted{GroupID: g, ID: 12, DeletedAt: epoch}, in)
	})

	t.Run("Rejects", func(t *testing.T) {
		noSender := msg(g, 12, epoch)
		noSender.SenderID = uuid.Nil
		badKind := msg(g, 12, epoch)
		badKind.Kind = "video"

		cases := map[string]transport.Event{
			"missing id":     broadcastEvent(t, EventMessageInserted, msg(g, 0, epoch)),
			"missing sender": broadcastEvent(t, EventMessageInserted, noSender),
			"bad kind":       broadcastEvent(t, EventMessageUpdated, badKind),
			"delete no id":   broadcastEvent(t, EventMessageDeleted, DeletePayload{GroupID: g}),
			"not json":       {Kind: transport.KindBroadcast, Name: EventMessageInserted, Payload: json.RawMessage(`{`)},
			"unknown event":  broadcastEvent(t, "message-pinned", msg(g, 1, epoch)),
			"unknown kind":   {Kind: transport.Kind(42)},
			"bad presence":   {Kind: transport.KindPresence, Name: "update"},
		}
		for name, ev := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := DecodeInbound(ev)
				assert.Error(t, err)
			})
		}
	})

	t.Run("Presence", func(t *testing.T) {
		ann := domain.TypingSignal{UserID: uuid.New(), DisplayName: "Ann", Typing: true, LastActivity: epoch}
		bob := domain.TypingSignal{UserID: uuid.New(), DisplayName: "Bob", Typing: false, LastActivity: epoch}
		rawAnn, _ := json.Marshal(ann)
		rawBob, _ := json.Marshal(bob)

		in, err := DecodeInbound(transport.Event{
			Kind: transport.KindPresence,
			Name: transport.PresenceJoin,
			Presence: map[string]json.RawMessage{
				"k2":  rawBob,
				"k1":  rawAnn,
				"bad": json.RawMessage(`"x"`),
			},
		})
		require.NoError(t, err)
		join, ok := in.(PresenceJoin)
		require.True(t, ok)
		require.Len(t, join.Signals, 2)
		assert.Equal(t, "Ann", join.Signals[0].DisplayName)
		assert.Equal(t, "Bob", join.Signals[1].DisplayName)
	})
}
