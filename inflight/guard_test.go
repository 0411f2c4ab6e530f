package inflight

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard_AcquireRelease(t *testing.T) {
	g := NewMemoryGuard(0)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, Key("mint", "note-1")))
	assert.True(t, g.Held("mint:note-1"))

	err := g.Acquire(ctx, Key("mint", "note-1"))
	assert.ErrorIs(t, err, ErrInFlight)

	// Different item is independent
	require.NoError(t, g.Acquire(ctx, Key("mint", "note-2")))

	require.NoError(t, g.Release(ctx, "mint:note-1"))
	assert.False(t, g.Held("mint:note-1"))
	require.NoError(t, g.Acquire(ctx, "mint:note-1"))
}

func TestMemoryGuard_ReleaseNotHeld(t *testing.T) {
	g := NewMemoryGuard(0)
	assert.ErrorIs(t, g.Release(context.Background(), "nope"), ErrNotHeld)
}

func TestMemoryGuard_ExpiredMarkerCanBeReacquired(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	require.NoError(t, g.Acquire(context.Background(), "k"))
	assert.ErrorIs(t, g.Acquire(context.Background(), "k"), ErrInFlight)

	now = now.Add(time.Minute)
	assert.False(t, g.Held("k"))
	assert.NoError(t, g.Acquire(context.Background(), "k"))
}

func TestMemoryGuard_CancelledContext(t *testing.T) {
	g := NewMemoryGuard(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Acquire(ctx, "k"), context.Canceled)
	assert.False(t, g.Held("k"))
}

func TestMemoryGuard_ConcurrentAcquireOnlyOneWins(t *testing.T) {
	g := NewMemoryGuard(0)
	const workers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background(), "same"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
