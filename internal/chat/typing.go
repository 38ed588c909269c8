package chat

import (
	"sync"
	"time"
)

// DefaultTypingExpiry 输入状态的过期时间
const DefaultTypingExpiry = 2500 * time.Millisecond

type typingEntry struct {
	actor string
	at    time.Time
	timer *time.Timer
	gen   uint64
}

// TypingCoordinator tracks who is typing per session. Each session has at
// most one live timer; a refresh re-arms it.
type TypingCoordinator struct {
	expiry time.Duration
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]*typingEntry
	onChange func(sessionID string)
	stopped  bool
}

func NewTypingCoordinator(expiry time.Duration) *TypingCoordinator {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingCoordinator{
		expiry:  expiry,
		now:     time.Now,
		entries: make(map[string]*typingEntry),
	}
}

// OnChange registers a callback fired when a session's indicator appears or
// expires. It runs outside the coordinator lock.
func (t *TypingCoordinator) OnChange(fn func(sessionID string)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Signal records that actor is typing in sessionID.
func (t *TypingCoordinator) Signal(sessionID, actor string) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	e, ok := t.entries[sessionID]
	if !ok {
		e = &typingEntry{}
		t.entries[sessionID] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	e.actor = actor
	e.at = t.now()
	gen := e.gen
	e.timer = time.AfterFunc(t.expiry, func() { t.expire(sessionID, gen) })
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(sessionID)
	}
}

// expire drops the entry only if no later Signal re-armed it.
func (t *TypingCoordinator) expire(sessionID string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[sessionID]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, sessionID)
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(sessionID)
	}
}

// Current returns the actor typing in sessionID, if the signal is still fresh.
func (t *TypingCoordinator) Current(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok || t.now().Sub(e.at) >= t.expiry {
		return "", false
	}
	return e.actor, true
}

func (t *TypingCoordinator) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[sessionID]; ok {
		e.timer.Stop()
		delete(t.entries, sessionID)
	}
}

// Stop cancels every timer; later signals are ignored.
func (t *TypingCoordinator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
	t.stopped = true
}
