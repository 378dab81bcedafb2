package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestQueue_PushAndExpire(t *testing.T) {
	c := &clock{t: time.Now()}
	q := NewQueue(DefaultTTL, c.now)

	n := q.Push(Notification{Title: "Welcome back!"})
	assert.Equal(t, Default, n.Variant)
	assert.NotEmpty(t, n.ID)

	require.Len(t, q.Active(), 1)

	c.t = c.t.Add(4 * time.Second)
	assert.Len(t, q.Active(), 1)

	c.t = c.t.Add(2 * time.Second)
	assert.Empty(t, q.Active())
}

func TestQueue_PushOnce(t *testing.T) {
	q := NewQueue(0, nil)

	assert.True(t, q.PushOnce("account-required:priv_1", Notification{Title: "Account Required"}))
	assert.False(t, q.PushOnce("account-required:priv_1", Notification{Title: "Account Required"}))
	assert.True(t, q.PushOnce("account-required:priv_2", Notification{Title: "Account Required"}))
	assert.Len(t, q.Active(), 2)

	q.Reset()
	assert.Empty(t, q.Active())
	assert.True(t, q.PushOnce("account-required:priv_1", Notification{Title: "Account Required"}))
}

func TestQueue_Dismiss(t *testing.T) {
	q := NewQueue(0, nil)
	a := q.Push(Notification{Title: "a"})
	b := q.Push(Notification{Title: "b", Variant: Destructive})

	assert.True(t, q.Dismiss(a.ID))
	assert.False(t, q.Dismiss(a.ID))

	active := q.Active()
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
	assert.Equal(t, Destructive, active[0].Variant)
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue(0, nil)
	assert.NotNil(t, q.Drain())

	q.Push(Notification{Title: "a"})
	q.Push(Notification{Title: "b"})

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Title)
	assert.Empty(t, q.Active())
}
