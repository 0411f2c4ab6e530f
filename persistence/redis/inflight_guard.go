package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/basenote/onchain/inflight"
)

// Key prefix for in-flight markers
const (
	inflightKeyPrefix = "basenote:inflight:" // marker by action:item
)

// DefaultInFlightTTL bounds how long a marker survives a process that died
// mid-workflow. It is longer than the two receipt waits of a workflow.
const DefaultInFlightTTL = 10 * time.Minute

// InFlightGuard is a Redis-backed inflight.Guard, shared by every process
// using the same Redis. Each marker stores an owner token so a guard only ever
// releases markers it acquired itself.
type InFlightGuard struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration

	mu     sync.Mutex
	tokens map[string]string // marker key -> owner token
}

// InFlightGuardOption configures an InFlightGuard.
type InFlightGuardOption func(*InFlightGuard)

// WithInFlightGuardKeyPrefix sets a custom prefix for all Redis keys.
// Useful for multi-tenant deployments sharing the same Redis instance.
func WithInFlightGuardKeyPrefix(prefix string) InFlightGuardOption {
	return func(g *InFlightGuard) {
		g.keyPrefix = prefix
	}
}

// WithInFlightGuardTTL sets the marker TTL. Zero keeps markers until released.
func WithInFlightGuardTTL(ttl time.Duration) InFlightGuardOption {
	return func(g *InFlightGuard) {
		g.ttl = ttl
	}
}

// NewInFlightGuard creates a new Redis-based in-flight guard.
func NewInFlightGuard(client redis.UniversalClient, opts ...InFlightGuardOption) *InFlightGuard {
	g := &InFlightGuard{
		client: client,
		ttl:    DefaultInFlightTTL,
		tokens: map[string]string{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *InFlightGuard) markerKey(key string) string {
	if g.keyPrefix != "" {
		return g.keyPrefix + ":" + inflightKeyPrefix + key
	}
	return inflightKeyPrefix + key
}

// Acquire marks key in flight with SETNX. It returns inflight.ErrInFlight when
// any process holds the marker.
func (g *InFlightGuard) Acquire(ctx context.Context, key string) error {
	token := uuid.NewString()
	acquired, err := g.client.SetNX(ctx, g.markerKey(key), token, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to set in-flight marker: %w", err)
	}
	if !acquired {
		return inflight.ErrInFlight
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return nil
}

// Release deletes the marker if this guard still owns it. A marker that
// expired and was taken over by another process is left alone.
func (g *InFlightGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return inflight.ErrNotHeld
	}

	markerKey := g.markerKey(key)
	err := g.client.Watch(ctx, func(rtx *redis.Tx) error {
		current, err := rtx.Get(ctx, markerKey).Result()
		if err == redis.Nil {
			return nil // expired, nothing to do
		}
		if err != nil {
			return fmt.Errorf("failed to get in-flight marker: %w", err)
		}
		if current != token {
			return nil // owned by someone else now
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, markerKey)
			return nil
		})
		return err
	}, markerKey)
	if err != nil {
		return fmt.Errorf("failed to release in-flight marker: %w", err)
	}
	return nil
}

// Held reports whether any process currently holds key.
func (g *InFlightGuard) Held(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, g.markerKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check in-flight marker: %w", err)
	}
	return n > 0, nil
}

var _ inflight.Guard = (*InFlightGuard)(nil)
