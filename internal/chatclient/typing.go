package chatclient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
)

const DefaultTypingTimeout = 10 * time.Second

// Scheduler runs f once after d. The returned func cancels it and reports
// whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SystemScheduler is the wall clock Scheduler.
var SystemScheduler Scheduler = systemScheduler{}

type TypingOptions struct {
	Self      domain.Identity
	Timeout   time.Duration
	Scheduler Scheduler
	Now       func() time.Time
	// Run executes timer callbacks on the goroutine that owns the tracker.
	// Nil means call them directly.
	Run func(func())
	// Publish sends the local typing state to the presence channel.
	Publish func(domain.TypingSignal)
	// OnChange is called when the remote list shrinks because of expiry.
	OnChange func()
}

// TypingTracker turns compose input into typing start/stop presence updates
// and keeps the list of remote typists derived from presence snapshots.
type TypingTracker struct {
	opts TypingOptions

	typing      bool
	lastPublish time.Time
	expiry      func() bool
	expirySeq   uint64

	remote   []remoteTypist
	prune    func() bool
	pruneSeq uint64
}

type remoteTypist struct {
	signal domain.TypingSignal
	seenAt time.Time
}

func NewTypingTracker(opts TypingOptions) *TypingTracker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTypingTimeout
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Run == nil {
		opts.Run = func(f func()) { f() }
	}
	return &TypingTracker{opts: opts}
}

// Typing reports whether the local user is in the Typing state.
func (t *TypingTracker) Typing() bool {
	return t.typing
}

// Input feeds the current compose text. Start is published only on the
// empty to non-empty edge; later keystrokes push the expiry back.
func (t *TypingTracker) Input(text string) {
	if strings.TrimSpace(text) == "" {
		t.Stop()
		return
	}

	now := t.opts.Now()
	if !t.typing {
		t.typing = true
		t.emit(true, now)
	} else if now.Sub(t.lastPublish) >= t.opts.Timeout/2 {
		// refresh so peers do not expire a user who keeps typing
		t.emit(true, now)
	}
	t.armExpiry()
}

// Stop ends the Typing state, publishing typing=false if it was active.
func (t *TypingTracker) Stop() {
	if !t.typing {
		return
	}
	t.cancelExpiry()
	t.typing = false
	t.emit(false, t.opts.Now())
}

// Teardown stops local typing and forgets every timer and remote typist.
func (t *TypingTracker) Teardown() {
	t.Stop()
	t.cancelExpiry()
	t.cancelPrune()
	t.remote = nil
}

func (t *TypingTracker) emit(typing bool, now time.Time) {
	t.lastPublish = now
	if t.opts.Publish == nil {
		return
	}
	t.opts.Publish(domain.TypingSignal{
		UserID:       t.opts.Self.UserID,
		DisplayName:  t.opts.Self.DisplayName,
		Typing:       typing,
		LastActivity: now,
	})
}

func (t *TypingTracker) armExpiry() {
	t.cancelExpiry()
	t.expirySeq++
	seq := t.expirySeq
	t.expiry = t.opts.Scheduler.AfterFunc(t.opts.Timeout, func() {
		t.opts.Run(func() { t.expire(seq) })
	})
}

func (t *TypingTracker) cancelExpiry() {
	if t.expiry != nil {
		t.expiry()
		t.expiry = nil
	}
	t.expirySeq++
}

func (t *TypingTracker) expire(seq uint64) {
	if seq != t.expirySeq || !t.typing {
		return
	}
	t.expiry = nil
	t.typing = false
	t.emit(false, t.opts.Now())
}

// SetRemote replaces the remote list with the typists found in a presence
// snapshot. The local user and users who are not typing are left out.
func (t *TypingTracker) SetRemote(signals []domain.TypingSignal) {
	now := t.opts.Now()

	prev := make(map[uuid.UUID]remoteTypist, len(t.remote))
	for _, r := range t.remote {
		prev[r.signal.UserID] = r
	}

	next := make([]remoteTypist, 0, len(signals))
	index := make(map[uuid.UUID]int, len(signals))
	for _, sig := range signals {
		if sig.UserID == t.opts.Self.UserID || !sig.Typing {
			continue
		}
		seenAt := now
		if p, ok := prev[sig.UserID]; ok && p.signal.LastActivity.Equal(sig.LastActivity) {
			seenAt = p.seenAt
		}
		if now.Sub(seenAt) >= t.opts.Timeout {
			continue
		}
		entry := remoteTypist{signal: sig, seenAt: seenAt}
		// the same account typing from two sessions shows once
		if i, ok := index[sig.UserID]; ok {
			if sig.LastActivity.After(next[i].signal.LastActivity) {
				next[i] = entry
			}
			continue
		}
		index[sig.UserID] = len(next)
		next = append(next, entry)
	}
	t.remote = next
	t.armPrune()
}

// Remote returns the users currently shown as typing.
func (t *TypingTracker) Remote() []domain.TypingSignal {
	now := t.opts.Now()
	out := make([]domain.TypingSignal, 0, len(t.remote))
	for _, r := range t.remote {
		if now.Sub(r.seenAt) < t.opts.Timeout {
			out = append(out, r.signal)
		}
	}
	return out
}

func (t *TypingTracker) armPrune() {
	t.cancelPrune()
	if len(t.remote) == 0 {
		return
	}

	earliest := t.remote[0].seenAt
	for _, r := range t.remote[1:] {
		if r.seenAt.Before(earliest) {
			earliest = r.seenAt
		}
	}
	wait := earliest.Add(t.opts.Timeout).Sub(t.opts.Now())
	if wait < 0 {
		wait = 0
	}

	t.pruneSeq++
	seq := t.pruneSeq
	t.prune = t.opts.Scheduler.AfterFunc(wait, func() {
		t.opts.Run(func() { t.expireRemote(seq) })
	})
}

func (t *TypingTracker) cancelPrune() {
	if t.prune != nil {
		t.prune()
		t.prune = nil
	}
	t.pruneSeq++
}

func (t *TypingTracker) expireRemote(seq uint64) {
	if seq != t.pruneSeq {
		return
	}
	t.prune = nil

	now := t.opts.Now()
	kept := t.remote[:0]
	for _, r := range t.remote {
		if now.Sub(r.seenAt) < t.opts.Timeout {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(t.remote)
	t.remote = kept
	t.armPrune()

	if changed && t.opts.OnChange != nil {
		t.opts.OnChange()
	}
}
