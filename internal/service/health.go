package service

import (
	"context"
	"sort"
	"time"
)

// Pinger is a dependency whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health checks the service's backing dependencies.
type Health struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Health{checks: make(map[string]Pinger), timeout: timeout}
}

// Register adds a named dependency. A nil pinger is ignored.
func (h *Health) Register(name string, p Pinger) {
	if p == nil {
		return
	}
	h.checks[name] = p
}

// Names returns the registered dependency names in order.
func (h *Health) Names() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check pings name. Unknown names report nil.
func (h *Health) Check(ctx context.Context, name string) error {
	p, ok := h.checks[name]
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return p.Ping(ctx)
}

// CheckAll pings every dependency and returns the failures by name.
func (h *Health) CheckAll(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, name := range h.Names() {
		if err := h.Check(ctx, name); err != nil {
			failed[name] = err
		}
	}
	return failed
}
