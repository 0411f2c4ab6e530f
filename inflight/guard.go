// Package inflight tracks which (action, item) pairs currently have a workflow
// running, so a second invocation for the same item can be rejected instead of
// paying a fee twice.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrInFlight is returned by Acquire when the key is already held.
	ErrInFlight = errors.New("action already in progress for this item")
	// ErrNotHeld is returned by Release when the key is not held.
	ErrNotHeld = errors.New("in-flight marker not held")
)

// Guard is a set of keys that are currently mid-workflow.
type Guard interface {
	// Acquire marks key as in flight. It returns ErrInFlight if the key is already marked.
	Acquire(ctx context.Context, key string) error
	// Release clears the marker for key.
	Release(ctx context.Context, key string) error
}

// Key builds the marker key for an action on an item.
func Key(action, itemID string) string {
	return action + ":" + itemID
}

// MemoryGuard is an in-process Guard. A non-zero TTL makes stale markers
// (e.g. from a workflow that never released) expire on their own.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	markers map[string]time.Time
	now     func() time.Time
}

// NewMemoryGuard creates an in-memory guard. ttl <= 0 means markers never expire.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:     ttl,
		markers: map[string]time.Time{},
		now:     time.Now,
	}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if acquiredAt, held := g.markers[key]; held && !g.expired(acquiredAt) {
		return ErrInFlight
	}
	g.markers[key] = g.now()
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.markers[key]; !held {
		return ErrNotHeld
	}
	delete(g.markers, key)
	return nil
}

// Held reports whether key is currently marked.
func (g *MemoryGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	acquiredAt, held := g.markers[key]
	return held && !g.expired(acquiredAt)
}

func (g *MemoryGuard) expired(acquiredAt time.Time) bool {
	return g.ttl > 0 && g.now().Sub(acquiredAt) >= g.ttl
}

var _ Guard = (*MemoryGuard)(nil)
