package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

const (
	eventually = 2 * time.Second
	poll       = 10 * time.Millisecond
)

type wsRecorder struct {
	mu       sync.Mutex
	events   []transport.Event
	statuses []transport.Status
	errs     []error
}

func (r *wsRecorder) onEvent(ev transport.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *wsRecorder) onStatus(s transport.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	r.errs = append(r.errs, err)
}

func (r *wsRecorder) has(s transport.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.statuses {
		if got == s {
			return true
		}
	}
	return false
}

func (r *wsRecorder) find(kind transport.Kind, name string) (transport.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Name == name {
			return ev, true
		}
	}
	return transport.Event{}, false
}

// relay starts the router on a real listener with the broker loop running.
func (env *testEnv) relay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.handlers.WebSocket.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, token string) *transport.WSClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	c, err := transport.DialWS(ctx, url, token, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func subscribe(t *testing.T, c *transport.WSClient, name string) (transport.Channel, *wsRecorder) {
	t.Helper()
	rec := &wsRecorder{}
	ch := c.Channel(name)
	require.NoError(t, ch.Subscribe(rec.onEvent, rec.onStatus))
	return ch, rec
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	url := env.relay(t)

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	_, err := transport.DialWS(ctx, url, "forged", logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	resp, err := http.Get(strings.Replace(url, "ws://", "http://", 1))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketRelay(t *testing.T) {
	env := newTestEnv(t)
	groupID := uuid.New()
	env.groups.On("RequireMember", mock.Anything, groupID, env.ann.UserID).Return(nil)
	env.groups.On("RequireMember", mock.Anything, groupID, env.bob.UserID).Return(nil)
	url := env.relay(t)

	ann := dial(t, url, "ann-token")
	bob := dial(t, url, "bob-token")
	messages := domain.MessageChannel(groupID)

	annCh, annRec := subscribe(t, ann, messages)
	_, bobRec := subscribe(t, bob, messages)
	require.Eventually(t, func() bool {
		return annRec.has(transport.StatusSubscribed) && bobRec.has(transport.StatusSubscribed)
	}, eventually, poll)
	assert.Equal(t, 2, env.handlers.WebSocket.SubscriberCount(messages))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Connections))

	payload := map[string]any{"id": 501, "group_id": groupID, "content": "hi"}
	require.NoError(t, annCh.Broadcast(context.Background(), "message-inserted", payload))

	var got transport.Event
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = bobRec.find(transport.KindBroadcast, "message-inserted")
		return ok
	}, eventually, poll)
	assert.Equal(t, env.ann.UserID.String(), got.From)
	assert.JSONEq(t, mustJSON(t, payload), string(got.Payload))

	// the sender gets its own broadcast too; echo handling is the client's job
	require.Eventually(t, func() bool {
		_, ok := annRec.find(transport.KindBroadcast, "message-inserted")
		return ok
	}, eventually, poll)
}

func TestWebSocketRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	groupID := uuid.New()
	env.groups.On("RequireMember", mock.Anything, groupID, env.bob.UserID).Return(apperrors.ErrNotMember)
	url := env.relay(t)

	bob := dial(t, url, "bob-token")
	messages := domain.MessageChannel(groupID)
	ch, rec := subscribe(t, bob, messages)

	require.Eventually(t, func() bool { return rec.has(transport.StatusError) }, eventually, poll)
	assert.False(t, rec.has(transport.StatusSubscribed))
	assert.Zero(t, env.handlers.WebSocket.SubscriberCount(messages))

	// the relay still refuses to fan out for the rejected channel
	_ = ch.Broadcast(context.Background(), "message-inserted", map[string]int{"id": 1})
	assert.Never(t, func() bool {
		_, ok := rec.find(transport.KindBroadcast, "message-inserted")
		return ok
	}, 100*time.Millisecond, poll)
}

func TestWebSocketPresence(t *testing.T) {
	env := newTestEnv(t)
	groupID := uuid.New()
	env.groups.On("RequireMember", mock.Anything, groupID, mock.Anything).Return(nil)
	url := env.relay(t)
	presence := domain.PresenceChannel(groupID)

	bob := dial(t, url, "bob-token")
	_, bobRec := subscribe(t, bob, presence)
	require.Eventually(t, func() bool {
		_, ok := bobRec.find(transport.KindPresence, transport.PresenceSync)
		return ok
	}, eventually, poll, "subscribing to a presence channel delivers the current set")

	ann := dial(t, url, "ann-token")
	annCh, annRec := subscribe(t, ann, presence)
	require.Eventually(t, func() bool { return annRec.has(transport.StatusSubscribed) }, eventually, poll)

	state := domain.TypingSignal{UserID: env.ann.UserID, DisplayName: "Ann", Typing: true}
	require.NoError(t, annCh.Track(context.Background(), state))

	var join transport.Event
	require.Eventually(t, func() bool {
		var ok bool
		join, ok = bobRec.find(transport.KindPresence, transport.PresenceJoin)
		return ok
	}, eventually, poll)
	assert.Equal(t, env.ann.UserID.String(), join.From)
	require.Len(t, join.Presence, 1)
	for _, raw := range join.Presence {
		var got domain.TypingSignal
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, env.ann.UserID, got.UserID)
		assert.True(t, got.Typing)
	}

	// dropping the socket withdraws the tracked state
	require.NoError(t, ann.Close())
	var leave transport.Event
	require.Eventually(t, func() bool {
		var ok bool
		leave, ok = bobRec.find(transport.KindPresence, transport.PresenceLeave)
		return ok
	}, eventually, poll)
	assert.Empty(t, leave.Presence)
	assert.Eventually(t, func() bool {
		return env.handlers.WebSocket.SubscriberCount(presence) == 1
	}, eventually, poll)
}

func TestWebSocketPresenceNamesTrackingUser(t *testing.T) {
	env := newTestEnv(t)
	groupID := uuid.New()
	env.groups.On("RequireMember", mock.Anything, groupID, mock.Anything).Return(nil)
	url := env.relay(t)
	presence := domain.PresenceChannel(groupID)

	bob := dial(t, url, "bob-token")
	_, bobRec := subscribe(t, bob, presence)
	require.Eventually(t, func() bool { return bobRec.has(transport.StatusSubscribed) }, eventually, poll)

	ann := dial(t, url, "ann-token")
	annCh, annRec := subscribe(t, ann, presence)
	require.Eventually(t, func() bool { return annRec.has(transport.StatusSubscribed) }, eventually, poll)

	// ann claims to be bob
	forged := domain.TypingSignal{UserID: env.bob.UserID, DisplayName: "Bob", Typing: true}
	require.NoError(t, annCh.Track(context.Background(), forged))

	var join transport.Event
	require.Eventually(t, func() bool {
		var ok bool
		join, ok = bobRec.find(transport.KindPresence, transport.PresenceJoin)
		return ok
	}, eventually, poll)
	require.Len(t, join.Presence, 1)
	for _, raw := range join.Presence {
		var got domain.TypingSignal
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, env.ann.UserID, got.UserID)
		assert.Equal(t, "Ann", got.DisplayName)
		assert.True(t, got.Typing)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
