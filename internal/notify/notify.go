// Package notify keeps the dismissible notifications shown to a session.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a notification stays visible unless dismissed.
const DefaultTTL = 5 * time.Second

type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
	Success     Variant = "success"
)

type Notification struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
}

// Queue holds a session's notifications in arrival order.
type Queue struct {
	mu    sync.Mutex
	items []Notification
	seen  map[string]struct{}
	ttl   time.Duration
	now   func() time.Time
}

// NewQueue creates a queue whose notifications expire after ttl.
// A nil clock means time.Now.
func NewQueue(ttl time.Duration, now func() time.Time) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{
		seen: make(map[string]struct{}),
		ttl:  ttl,
		now:  now,
	}
}

// Push appends n, assigning its ID and creation time.
func (q *Queue) Push(n Notification) Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.push(n)
}

// PushOnce appends n unless a notification with the same key was already
// pushed since the last Reset. It reports whether n was added.
func (q *Queue) PushOnce(key string, n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.seen[key]; ok {
		return false
	}
	q.seen[key] = struct{}{}
	q.push(n)
	return true
}

func (q *Queue) push(n Notification) Notification {
	if n.Variant == "" {
		n.Variant = Default
	}
	n.ID = uuid.New()
	n.CreatedAt = q.now()
	q.items = append(q.items, n)
	return n
}

// Dismiss removes the notification with the given id.
func (q *Queue) Dismiss(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns notifications that have not expired.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Drain returns the active notifications and empties the queue.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Reset drops every notification and forgets dedupe keys.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.seen = make(map[string]struct{})
}

func (q *Queue) prune() {
	cutoff := q.now().Add(-q.ttl)
	kept := q.items[:0]
	for _, n := range q.items {
		if n.CreatedAt.After(cutoff) {
			kept = append(kept, n)
		}
	}
	q.items = kept
}
