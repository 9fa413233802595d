package ratelimit

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore returns a Store whose clock is controlled by the returned pointer.
func newStore(t *testing.T, cfg Config) (*Store, *time.Time) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := New(db, cfg)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestNew_Defaults(t *testing.T) {
	s, _ := newStore(t, Config{})
	assert.Equal(t, DefaultMaxAttempts, s.cfg.MaxAttempts)
	assert.Equal(t, DefaultWindow, s.cfg.Window)
	assert.Equal(t, DefaultLockout, s.cfg.Lockout)
}

func TestStore_NoRecordIsNotLocked(t *testing.T) {
	s, _ := newStore(t, Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, locked := s.LockedUntil(ctx, "nobody@example.com")
	assert.False(t, locked)

	a, err := s.Get(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestStore_LocksAfterMaxAttempts(t *testing.T) {
	s, now := newStore(t, Config{MaxAttempts: 3, Window: time.Minute, Lockout: 10 * time.Minute})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		_, locked, err := s.RecordFailure(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.False(t, locked, "failure %d should not lock", i+1)
	}

	until, locked, err := s.RecordFailure(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.True(t, locked, "third failure should lock")
	assert.Equal(t, now.Add(10*time.Minute), until)

	_, locked = s.LockedUntil(ctx, " ada@example.com ")
	assert.True(t, locked, "lookups are case and space insensitive")

	*now = now.Add(11 * time.Minute)
	_, locked = s.LockedUntil(ctx, "ada@example.com")
	assert.False(t, locked, "lockout expires")
}

func TestStore_WindowRestarts(t *testing.T) {
	s, now := newStore(t, Config{MaxAttempts: 2, Window: time.Minute, Lockout: time.Hour})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, _, err := s.RecordFailure(ctx, "ada@example.com")
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)
	_, locked, err := s.RecordFailure(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, locked, "a failure outside the window starts a new count")

	a, err := s.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 1, a.AttemptCount)
}

func TestStore_Clear(t *testing.T) {
	s, _ := newStore(t, Config{MaxAttempts: 1})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, locked, err := s.RecordFailure(ctx, "ada@example.com")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, s.Clear(ctx, "Ada@Example.com"))
	_, locked = s.LockedUntil(ctx, "ada@example.com")
	assert.False(t, locked)
}
