// Package chatclient keeps a user's view of group conversations in sync with
// local actions, realtime transport events and history backfill.
//
// All state lives on a single event loop goroutine owned by Session. Transport
// callbacks, timer fires and request completions are posted to that loop;
// persistence requests run on their own goroutines and carry the selection
// generation that issued them so stale answers can be dropped.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

const (
	inboxSize      = 256
	publishTimeout = 5 * time.Second
)

type Options struct {
	Identity         domain.Identity
	API              API
	Transport        transport.Client
	PageSize         int
	TypingTimeout    time.Duration
	MaxContentLength int
	EchoMode         EchoMode
	Scheduler        Scheduler
	Now              func() time.Time
	Log              logger.Logger
}

// State is a snapshot of the session for rendering.
type State struct {
	Groups      []domain.Group
	ActiveGroup uuid.UUID
	Messages    []domain.Message
	HasMore     bool
	Loading     bool
	Connected   bool
	Typing      []domain.TypingSignal
	Err         error
	Generation  uint64
}

type Session struct {
	self      domain.Identity
	api       API
	transport transport.Client
	now       func() time.Time
	log       logger.Logger

	store  *Store
	typing *TypingTracker
	router *Router
	sender *Sender
	pager  *Pager

	inbox     chan func()
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// loop owned
	gen     uint64
	active  uuid.UUID
	groups  []domain.Group
	hasMore map[uuid.UUID]bool
	loading bool
	err     error

	mu      sync.RWMutex
	state   State
	updates chan struct{}
}

func NewSession(opts Options) (*Session, error) {
	if opts.Identity.UserID == uuid.Nil {
		return nil, fmt.Errorf("session identity is required")
	}
	if opts.API == nil || opts.Transport == nil {
		return nil, fmt.Errorf("session needs an API and a transport")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		self:      opts.Identity,
		api:       opts.API,
		transport: opts.Transport,
		now:       opts.Now,
		log:       opts.Log.With("user_id", opts.Identity.UserID.String()),
		store:     NewStore(),
		pager:     NewPager(opts.PageSize),
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		hasMore:   make(map[uuid.UUID]bool),
		updates:   make(chan struct{}, 1),
	}
	s.typing = NewTypingTracker(TypingOptions{
		Self:      opts.Identity,
		Timeout:   opts.TypingTimeout,
		Scheduler: opts.Scheduler,
		Now:       opts.Now,
		Run:       func(f func()) { s.post(f) },
		Publish:   s.publishTyping,
	})
	s.router = NewRouter(opts.Identity.UserID, opts.EchoMode, s.store, s.typing, s.log)
	s.sender = NewSender(s.store, opts.Identity, opts.MaxContentLength, opts.Now)

	s.wg.Add(1)
	go s.loop()

	return s, nil
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.inbox:
			fn()
			s.commit()
		case <-s.done:
			return
		}
	}
}

func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for it. The snapshot is committed before
// call returns.
func (s *Session) call(fn func()) error {
	ran := make(chan struct{})
	if !s.post(func() { fn(); s.commit(); close(ran) }) {
		return ErrSessionClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) commit() {
	st := State{
		Groups:      append([]domain.Group(nil), s.groups...),
		ActiveGroup: s.active,
		Loading:     s.loading,
		Connected:   s.router.Connected(),
		Typing:      s.typing.Remote(),
		Err:         s.err,
		Generation:  s.gen,
	}
	if s.active != uuid.Nil {
		st.Messages = s.store.Messages(s.active)
		st.HasMore = s.hasMore[s.active]
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) fail(err error) {
	s.log.Error("Chat operation failed", "error", err)
	s.err = err
}

// State returns the latest snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Updates receives a value after state changes. Notifications coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// ClearError empties the error slot.
func (s *Session) ClearError() {
	s.post(func() { s.err = nil })
}

// RefreshGroups replaces the group list with the server's.
func (s *Session) RefreshGroups(ctx context.Context) error {
	groups, err := s.api.ListGroups(ctx)
	cerr := s.call(func() {
		if err != nil {
			s.fail(fmt.Errorf("failed to load groups: %w", err))
			return
		}
		s.groups = groups
		sortGroups(s.groups)
	})
	if err != nil {
		return err
	}
	return cerr
}

// CreateGroup creates a group and adds it to the list.
func (s *Session) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*domain.Group, error) {
	g, err := s.api.CreateGroup(ctx, req)
	cerr := s.call(func() {
		if err != nil {
			s.fail(fmt.Errorf("failed to create group: %w", err))
			return
		}
		s.groups = append(s.groups, *g)
		sortGroups(s.groups)
	})
	if err != nil {
		return nil, err
	}
	return g, cerr
}

// SelectGroup switches the active group. The first page and the channel pair
// arrive asynchronously; watch Updates.
func (s *Session) SelectGroup(groupID uuid.UUID) error {
	if !s.post(func() { s.selectGroup(groupID) }) {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) selectGroup(groupID uuid.UUID) {
	s.gen++
	gen := s.gen

	s.typing.Teardown()
	if err := s.router.Close(); err != nil {
		s.log.Warn("Failed to close channel pair", "error", err)
	}

	s.active = groupID
	s.loading = true

	limit := s.pager.PageSize()
	s.spawn(func() {
		msgs, err := s.api.ListMessages(s.ctx, groupID, limit, 0)
		s.post(func() { s.firstPage(gen, groupID, msgs, err) })
	})
}

func (s *Session) firstPage(gen uint64, groupID uuid.UUID, msgs []domain.Message, err error) {
	if gen != s.gen {
		s.log.Debug("Discarding stale page", "group_id", groupID, "generation", gen)
		return
	}
	s.loading = false

	if err != nil {
		if errors.Is(err, apperrors.ErrForbidden) || errors.Is(err, apperrors.ErrNotMember) {
			s.store.Dispatch(SetAll{GroupID: groupID})
			s.hasMore[groupID] = false
		}
		s.fail(fmt.Errorf("failed to load messages: %w", err))
		return
	}

	s.store.Dispatch(SetAll{GroupID: groupID, Messages: msgs})
	s.pager.Reset(groupID, len(msgs))
	s.hasMore[groupID] = len(msgs) == s.pager.PageSize()

	_, err = s.router.Open(s.transport, groupID,
		func(ev transport.Event) {
			s.post(func() { s.onEvent(gen, ev) })
		},
		func(channel string, st transport.Status, err error) {
			s.post(func() { s.onStatus(gen, channel, st, err) })
		})
	if err != nil {
		s.fail(err)
	}

	s.markRead(gen, groupID)
}

func (s *Session) markRead(gen uint64, groupID uuid.UUID) {
	for i := range s.groups {
		if s.groups[i].ID == groupID {
			s.groups[i].UnreadCount = 0
		}
	}
	s.spawn(func() {
		if err := s.api.MarkRead(s.ctx, groupID); err != nil {
			s.post(func() {
				if gen == s.gen {
					s.fail(fmt.Errorf("failed to mark group read: %w", err))
				}
			})
		}
	})
}

func (s *Session) onEvent(gen uint64, ev transport.Event) {
	if gen != s.gen {
		return
	}
	in, changed := s.router.Handle(ev)
	if ins, ok := in.(MessageInserted); ok && changed {
		s.touchGroup(ins.Message)
	}
}

func (s *Session) onStatus(gen uint64, channel string, st transport.Status, err error) {
	if gen != s.gen {
		return
	}
	s.router.SetStatus(channel, st, err)
	if st == transport.StatusError {
		s.fail(fmt.Errorf("subscription to %s failed: %w", channel, err))
	}
}

// SetInput reports the compose box content for typing presence.
func (s *Session) SetInput(text string) {
	s.post(func() {
		if s.router.Pair() == nil {
			return
		}
		s.typing.Input(text)
	})
}

// CancelCompose ends typing without sending.
func (s *Session) CancelCompose() {
	s.post(func() { s.typing.Stop() })
}

func (s *Session) publishTyping(sig domain.TypingSignal) {
	pair := s.router.Pair()
	if pair == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()
	if err := pair.Presence.Track(ctx, sig); err != nil {
		s.log.Warn("Failed to publish typing state", "group_id", pair.GroupID, "error", err)
	}
}

// broadcast publishes on the live pair if it belongs to groupID and reports
// whether the event went out.
func (s *Session) broadcast(groupID uuid.UUID, event string, payload any) bool {
	pair := s.router.Pair()
	if pair == nil || pair.GroupID != groupID {
		return false
	}
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()
	if err := pair.Messages.Broadcast(ctx, event, payload); err != nil {
		s.log.Warn("Failed to broadcast", "event", event, "group_id", groupID, "error", err)
		return false
	}
	return true
}

// Send validates d, shows it as pending in the active group and persists it.
// Validation errors return before any state changes; persistence errors mark
// the message failed.
func (s *Session) Send(d Draft) error {
	var err error
	if cerr := s.call(func() { err = s.send(d) }); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) send(d Draft) error {
	if s.active == uuid.Nil {
		return ErrNoGroupSelected
	}
	groupID := s.active

	pending, req, err := s.sender.Begin(groupID, d)
	if err != nil {
		return err
	}
	s.router.Own(pending.ClientID)
	s.typing.Stop()

	s.spawn(func() {
		msg, err := s.api.CreateMessage(s.ctx, groupID, req)
		s.post(func() { s.sendDone(pending, msg, err) })
	})
	return nil
}

func (s *Session) sendDone(pending domain.Message, msg *domain.Message, err error) {
	final := s.sender.Complete(pending, msg, err)
	if err != nil {
		s.router.Disown(pending.ClientID)
		s.fail(fmt.Errorf("failed to send message: %w", err))
		return
	}
	s.router.Replay()
	s.touchGroup(final)
	if !s.broadcast(final.GroupID, EventMessageInserted, final) {
		s.router.Disown(pending.ClientID)
	}
}

// Edit changes the content of one of the user's messages in the active group.
func (s *Session) Edit(messageID int64, content string) error {
	var err error
	if cerr := s.call(func() { err = s.edit(messageID, content) }); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) edit(messageID int64, content string) error {
	if s.active == uuid.Nil {
		return ErrNoGroupSelected
	}
	groupID := s.active
	if _, err := s.sender.BeginEdit(groupID, messageID, content); err != nil {
		return err
	}

	s.spawn(func() {
		msg, err := s.api.UpdateMessage(s.ctx, messageID, content)
		s.post(func() {
			if err != nil {
				s.fail(fmt.Errorf("failed to edit message: %w", err))
				return
			}
			s.sender.CompleteEdit(*msg)
			s.broadcast(groupID, EventMessageUpdated, *msg)
		})
	})
	return nil
}

// Delete soft deletes one of the user's messages in the active group.
func (s *Session) Delete(messageID int64) error {
	var err error
	if cerr := s.call(func() { err = s.delete(messageID) }); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) delete(messageID int64) error {
	if s.active == uuid.Nil {
		return ErrNoGroupSelected
	}
	groupID := s.active
	if _, err := s.sender.BeginDelete(groupID, messageID); err != nil {
		return err
	}

	s.spawn(func() {
		msg, err := s.api.DeleteMessage(s.ctx, messageID)
		s.post(func() {
			if err != nil {
				s.fail(fmt.Errorf("failed to delete message: %w", err))
				return
			}
			at := s.now()
			if msg != nil && msg.DeletedAt != nil {
				at = *msg.DeletedAt
			}
			s.sender.CompleteDelete(groupID, messageID, at)
			s.broadcast(groupID, EventMessageDeleted, DeletePayload{ID: messageID, GroupID: groupID, DeletedAt: at})
		})
	})
	return nil
}

// LoadMore backfills the next older page of groupID and reports whether more
// pages may exist. It fails with ErrStaleSelection if the selection changed
// while the page was in flight.
func (s *Session) LoadMore(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var (
		gen           uint64
		limit, offset int
	)
	if err := s.call(func() {
		gen = s.gen
		limit, offset = s.pager.Next(groupID)
	}); err != nil {
		return false, err
	}

	page, err := s.api.ListMessages(ctx, groupID, limit, offset)

	var (
		hasMore bool
		stale   bool
	)
	cerr := s.call(func() {
		if gen != s.gen {
			stale = true
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("failed to load older messages: %w", err))
			return
		}
		hasMore = s.pager.Apply(s.store, groupID, offset, page)
		s.hasMore[groupID] = hasMore
		s.router.Replay()
	})
	switch {
	case err != nil:
		return false, err
	case cerr != nil:
		return false, cerr
	case stale:
		return false, ErrStaleSelection
	}
	return hasMore, nil
}

func (s *Session) touchGroup(m domain.Message) {
	for i := range s.groups {
		g := &s.groups[i]
		if g.ID != m.GroupID {
			continue
		}
		if g.LastMessage == nil || !m.CreatedAt.Before(g.LastMessage.CreatedAt) {
			g.LastMessage = m.Preview()
			g.UpdatedAt = m.CreatedAt
		}
		if m.GroupID != s.active && m.SenderID != s.self.UserID {
			g.UnreadCount++
		}
		sortGroups(s.groups)
		return
	}
}

func sortGroups(groups []domain.Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].UpdatedAt.After(groups[j].UpdatedAt)
	})
}

// Close publishes a pending typing stop, closes the channel pair and waits for
// in-flight requests to return.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.call(func() {
			s.typing.Teardown()
			err = s.router.Close()
		})
		s.cancel()
		close(s.done)
		s.wg.Wait()
	})
	return err
}
