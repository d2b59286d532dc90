package memorylimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowUpToLimit(t *testing.T) {
	l := New(Limit{Requests: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Limit{Requests: 1, Window: time.Minute})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWindowSlides(t *testing.T) {
	l := New(Limit{Requests: 1, Window: 50 * time.Millisecond})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(80 * time.Millisecond)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDenialIsNotRecorded(t *testing.T) {
	l := New(Limit{Requests: 1, Window: 50 * time.Millisecond})
	ctx := context.Background()

	_, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)

	// Hammering while throttled must not push the recovery point out.
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.False(t, ok)
	}

	time.Sleep(80 * time.Millisecond)
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepDropsStaleKeys(t *testing.T) {
	l := New(Limit{Requests: 5, Window: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	l.Sweep()

	l.mu.Lock()
	_, still := l.seen["10.0.0.1"]
	l.mu.Unlock()
	assert.False(t, still)
}

func TestDefaults(t *testing.T) {
	l := New(Limit{})
	assert.Equal(t, 120, l.limit.Requests)
	assert.Equal(t, time.Minute, l.limit.Window)
}
