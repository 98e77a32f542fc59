package chatclient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	apperrors "employee_directory/pkg/errors"
)

var epoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func epochClock() time.Time { return epoch }

// fakeClock is a manual Scheduler. Advance fires due callbacks in order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeServer is an in-memory stand-in for the REST API shared by several
// clients.
type fakeServer struct {
	mu         sync.Mutex
	clock      func() time.Time
	nextID     int64
	messages   map[uuid.UUID][]domain.Message
	groups     map[uuid.UUID]domain.Group
	forbidden  map[uuid.UUID]bool
	gates      map[uuid.UUID]chan struct{}
	createHold chan struct{}
	createErr  error
	lists      int
	blocked    int
}

func newFakeServer(clock func() time.Time) *fakeServer {
	return &fakeServer{
		clock:     clock,
		nextID:    501,
		messages:  make(map[uuid.UUID][]domain.Message),
		groups:    make(map[uuid.UUID]domain.Group),
		forbidden: make(map[uuid.UUID]bool),
		gates:     make(map[uuid.UUID]chan struct{}),
	}
}

func (s *fakeServer) addGroup(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.groups[id] = domain.Group{ID: id, Name: name, UpdatedAt: s.clock()}
	return id
}

// seed stores n messages in groupID, one second apart.
func (s *fakeServer) seed(groupID uuid.UUID, sender domain.Identity, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := len(s.messages[groupID])
	for i := 0; i < n; i++ {
		s.messages[groupID] = append(s.messages[groupID], domain.Message{
			ID:         s.nextID,
			GroupID:    groupID,
			SenderID:   sender.UserID,
			SenderName: sender.DisplayName,
			Content:    "seed",
			Kind:       domain.MessageKindText,
			Status:     domain.MessageStatusSent,
			CreatedAt:  epoch.Add(-time.Hour).Add(time.Duration(base+i) * time.Second),
		})
		s.nextID++
	}
}

// gate blocks ListMessages for groupID until the returned func is called.
func (s *fakeServer) gate(groupID uuid.UUID) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[groupID] = ch
	return func() {
		s.mu.Lock()
		delete(s.gates, groupID)
		s.mu.Unlock()
		close(ch)
	}
}

// holdCreates blocks CreateMessage until the returned func is called.
func (s *fakeServer) holdCreates() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.createHold = ch
	return func() {
		s.mu.Lock()
		s.createHold = nil
		s.mu.Unlock()
		close(ch)
	}
}

func (s *fakeServer) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// blockedCalls counts ListMessages calls that reached a gate.
func (s *fakeServer) blockedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

func (s *fakeServer) count(groupID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[groupID])
}

type fakeAPI struct {
	srv *fakeServer
	who domain.Identity
}

func (a *fakeAPI) ListGroups(ctx context.Context) ([]domain.Group, error) {
	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	out := make([]domain.Group, 0, len(a.srv.groups))
	for _, g := range a.srv.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *fakeAPI) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*domain.Group, error) {
	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	g := domain.Group{ID: uuid.New(), Name: req.Name, Description: req.Description, MemberCount: len(req.MemberIDs) + 1, UpdatedAt: a.srv.clock()}
	a.srv.groups[g.ID] = g
	return &g, nil
}

func (a *fakeAPI) MarkRead(ctx context.Context, groupID uuid.UUID) error {
	return nil
}

func (a *fakeAPI) ListMessages(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	a.srv.mu.Lock()
	gate := a.srv.gates[groupID]
	a.srv.mu.Unlock()
	if gate != nil {
		a.srv.mu.Lock()
		a.srv.blocked++
		a.srv.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	a.srv.lists++
	if a.srv.forbidden[groupID] {
		return nil, apperrors.ErrForbidden
	}
	all := a.srv.messages[groupID]
	end := len(all) - offset
	if end <= 0 {
		return []domain.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (a *fakeAPI) CreateMessage(ctx context.Context, groupID uuid.UUID, req domain.CreateMessageRequest) (*domain.Message, error) {
	a.srv.mu.Lock()
	hold := a.srv.createHold
	a.srv.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	if a.srv.createErr != nil {
		return nil, a.srv.createErr
	}
	m := domain.Message{
		ID:          a.srv.nextID,
		GroupID:     groupID,
		SenderID:    a.who.UserID,
		SenderName:  a.who.DisplayName,
		Content:     req.Content,
		Kind:        req.Kind,
		Status:      domain.MessageStatusSent,
		ClientID:    req.ClientID,
		ReplyToID:   req.ReplyToID,
		Attachments: req.Attachments,
		CreatedAt:   a.srv.clock(),
	}
	a.srv.nextID++
	a.srv.messages[groupID] = append(a.srv.messages[groupID], m)
	return &m, nil
}

func (a *fakeAPI) find(id int64) (*domain.Message, error) {
	for gid := range a.srv.messages {
		for i := range a.srv.messages[gid] {
			if a.srv.messages[gid][i].ID == id {
				return &a.srv.messages[gid][i], nil
			}
		}
	}
	return nil, apperrors.ErrMessageNotFound
}

func (a *fakeAPI) UpdateMessage(ctx context.Context, id int64, content string) (*domain.Message, error) {
	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	m, err := a.find(id)
	if err != nil {
		return nil, err
	}
	now := a.srv.clock()
	m.Content = content
	m.EditCount++
	m.EditedAt = &now
	out := *m
	return &out, nil
}

func (a *fakeAPI) DeleteMessage(ctx context.Context, id int64) (*domain.Message, error) {
	a.srv.mu.Lock()
	defer a.srv.mu.Unlock()
	m, err := a.find(id)
	if err != nil {
		return nil, err
	}
	if m.DeletedAt != nil {
		return nil, apperrors.ErrMessageDeleted
	}
	now := a.srv.clock()
	m.DeletedAt = &now
	out := *m
	return &out, nil
}

var errBoom = errors.New("boom")

func identity(name string) domain.Identity {
	return domain.Identity{UserID: uuid.New(), Email: name + "@corp.example", DisplayName: name}
}

func msg(groupID uuid.UUID, id int64, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		GroupID:   groupID,
		SenderID:  uuid.New(),
		Content:   "m",
		Kind:      domain.MessageKindText,
		Status:    domain.MessageStatusSent,
		CreatedAt: at,
	}
}

func ids(msgs []domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
