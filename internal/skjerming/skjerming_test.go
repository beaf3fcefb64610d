package skjerming

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingChecker struct {
	calls    int
	screened map[string]bool
	err      error
}

func (c *countingChecker) Skjermet(ctx context.Context, ident string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.screened[ident], nil
}

func TestCached_HitsAfterFirstLookup(t *testing.T) {
	next := &countingChecker{screened: map[string]bool{"1": true}}
	c := NewCached(next, time.Hour, 100, discard)

	for i := 0; i < 3; i++ {
		s, err := c.Skjermet(context.Background(), "1")
		require.NoError(t, err)
		assert.True(t, s)
	}
	assert.Equal(t, 1, next.calls)

	c.Evict("1")
	_, _ = c.Skjermet(context.Background(), "1")
	assert.Equal(t, 2, next.calls)

	c.Purge()
	_, _ = c.Skjermet(context.Background(), "1")
	assert.Equal(t, 3, next.calls)
}

func TestCached_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	next := &countingChecker{}
	c := NewCached(next, time.Minute, 100, discard).WithClock(func() time.Time { return now })

	_, _ = c.Skjermet(context.Background(), "1")
	now = now.Add(2 * time.Minute)
	_, _ = c.Skjermet(context.Background(), "1")
	assert.Equal(t, 2, next.calls)
}

func TestCached_FailedLookupDegradesToScreened(t *testing.T) {
	next := &countingChecker{err: errors.New("timeout")}
	c := NewCached(next, time.Hour, 100, discard)

	s, err := c.Skjermet(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, s)

	// failures are not cached
	next.err = nil
	s, err = c.Skjermet(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, s)
	assert.Equal(t, 2, next.calls)
}

func TestAnySkjermet(t *testing.T) {
	c := CheckerFunc(func(ctx context.Context, ident string) (bool, error) {
		return ident == "2", nil
	})

	s, err := AnySkjermet(context.Background(), c, "1", "", "2")
	require.NoError(t, err)
	assert.True(t, s)

	s, err = AnySkjermet(context.Background(), c, "1")
	require.NoError(t, err)
	assert.False(t, s)

	s, err = AnySkjermet(context.Background(), Disabled{}, "2")
	require.NoError(t, err)
	assert.False(t, s)
}
