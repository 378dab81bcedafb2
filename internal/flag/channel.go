// Package flag implements the per-session logout flag shared by the logout
// action and every pending reconciliation step.
package flag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/model"
)

// EventKind tells subscribers whether a logout started or finished.
type EventKind int

const (
	Began EventKind = iota + 1
	Ended
)

func (k EventKind) String() string {
	switch k {
	case Began:
		return "began"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers when a session's logout flag changes.
type Event struct {
	SessionID string
	Kind      EventKind
}

// Channel combines a durable flag store with an in-process flag per session.
// A logout is in progress while either of them is set.
type Channel struct {
	store    model.FlagStore
	volatile sync.Map
	logger   *logger.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewChannel(store model.FlagStore, logger *logger.Logger) *Channel {
	return &Channel{
		store:  store,
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
}

// Key returns the durable key of a session's logout flag.
func Key(sessionID string) string {
	return model.LogoutFlagKey + ":" + sessionID
}

func (c *Channel) flagFor(sessionID string) *atomic.Bool {
	v, _ := c.volatile.LoadOrStore(sessionID, new(atomic.Bool))
	return v.(*atomic.Bool)
}

// Begin marks a logout as started and notifies subscribers before returning.
// A durable write failure is logged; the in-process flag still guards this process.
func (c *Channel) Begin(ctx context.Context, sessionID string) {
	c.flagFor(sessionID).Store(true)

	if err := c.store.Set(ctx, Key(sessionID), model.LogoutFlagTTL); err != nil {
		c.logger.Warn("Flag channel: failed to set durable logout flag", "session", sessionID, "error", err)
	}

	c.publish(Event{SessionID: sessionID, Kind: Began})
}

// End clears both flags and notifies subscribers.
func (c *Channel) End(ctx context.Context, sessionID string) {
	if err := c.store.Clear(ctx, Key(sessionID)); err != nil {
		c.logger.Warn("Flag channel: failed to clear durable logout flag", "session", sessionID, "error", err)
	}

	c.flagFor(sessionID).Store(false)

	c.publish(Event{SessionID: sessionID, Kind: Ended})
}

// InProgress reports whether a logout is underway for the session.
// The in-process flag is consulted first; a durable read error counts as unset.
func (c *Channel) InProgress(ctx context.Context, sessionID string) bool {
	if v, ok := c.volatile.Load(sessionID); ok && v.(*atomic.Bool).Load() {
		return true
	}

	set, err := c.store.IsSet(ctx, Key(sessionID))
	if err != nil {
		c.logger.Warn("Flag channel: failed to read durable logout flag", "session", sessionID, "error", err)
		return false
	}
	return set
}

// Forget drops the in-process flag of a session that no longer exists.
func (c *Channel) Forget(sessionID string) {
	c.volatile.Delete(sessionID)
}

// Subscribe registers fn for every flag change. fn runs synchronously on the
// goroutine that called Begin or End.
func (c *Channel) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Channel) publish(ev Event) {
	c.mu.RLock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Ping checks the durable store.
func (c *Channel) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
