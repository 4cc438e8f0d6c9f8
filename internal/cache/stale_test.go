package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T) (*Stale[string, int], *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, time.June, 21, 8, 0, 0, 0, time.UTC)}
	c := New[string, int](Config{TTL: time.Minute, StaleFor: 10 * time.Minute})
	c.now = clk.Now
	return c, clk
}

func counter(n *int, value int, err error) func() (int, error) {
	return func() (int, error) {
		*n++
		return value, err
	}
}

func TestStale_FreshHitSkipsLoad(t *testing.T) {
	c, clk := newTestCache(t)
	var loads int

	r, err := c.Get("a", counter(&loads, 1, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Value)

	clk.Advance(59 * time.Second)
	r, err = c.Get("a", counter(&loads, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Value)
	assert.Equal(t, 1, loads)
	assert.False(t, r.Stale)
}

func TestStale_ExpiredEntryReloads(t *testing.T) {
	c, clk := newTestCache(t)
	var loads int

	_, err := c.Get("a", counter(&loads, 1, nil))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	r, err := c.Get("a", counter(&loads, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Value)
	assert.Equal(t, clk.Now(), r.FetchedAt)
}

func TestStale_ServesStaleOnLoadFailure(t *testing.T) {
	c, clk := newTestCache(t)
	var loads int
	down := errors.New("upstream down")

	_, err := c.Get("a", counter(&loads, 7, nil))
	require.NoError(t, err)
	fetched := clk.Now()

	clk.Advance(5 * time.Minute)
	r, err := c.Get("a", counter(&loads, 0, down))
	require.NoError(t, err)
	assert.True(t, r.Stale)
	assert.Equal(t, 7, r.Value)
	assert.ErrorIs(t, r.LoadErr, down)
	assert.Equal(t, fetched, r.FetchedAt)

	clk.Advance(5 * time.Minute)
	_, err = c.Get("a", counter(&loads, 0, down))
	assert.ErrorIs(t, err, down)
}

func TestStale_MissWithFailureReturnsError(t *testing.T) {
	c, _ := newTestCache(t)
	var loads int

	_, err := c.Get("a", counter(&loads, 0, errors.New("boom")))
	require.Error(t, err)
	assert.Equal(t, Stats{}, c.Stats())
}

func TestStale_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := New[string, int](Config{TTL: time.Minute})
	release := make(chan struct{})
	var loads atomic.Int32
	var started sync.WaitGroup
	started.Add(1)

	load := func() (int, error) {
		if loads.Add(1) == 1 {
			started.Done()
		}
		<-release
		return 3, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Get("a", load)
			assert.NoError(t, err)
			assert.Equal(t, 3, r.Value)
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestStale_StatsAndPruning(t *testing.T) {
	c, clk := newTestCache(t)
	var loads int

	_, _ = c.Get("old", counter(&loads, 1, nil))
	clk.Advance(2 * time.Minute)
	_, _ = c.Get("new", counter(&loads, 2, nil))
	assert.Equal(t, Stats{Entries: 2, Fresh: 1, Stale: 1}, c.Stats())

	clk.Advance(9 * time.Minute)
	_, _ = c.Get("newest", counter(&loads, 3, nil))
	// "old" is past StaleFor and is dropped on the next write.
	assert.Equal(t, Stats{Entries: 2, Fresh: 1, Stale: 1}, c.Stats())

	c.Invalidate()
	assert.Equal(t, Stats{}, c.Stats())
}
