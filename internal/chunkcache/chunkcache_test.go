package chunkcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBuildsAndCachesSingleFlight(t *testing.T) {
	c := New(4)
	var calls int32

	build := func(index int) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte{byte(index)}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Get(3, build)
			require.NoError(t, err)
			require.Equal(t, []byte{3}, data)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetPropagatesBuildError(t *testing.T) {
	c := New(2)
	wantErr := errors.New("boom")
	_, err := c.Get(0, func(int) ([]byte, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 0, c.Len())
}

func TestEvictsLeastRecentlyUsedReadyEntry(t *testing.T) {
	c := New(2)
	build := func(index int) ([]byte, error) { return []byte{byte(index)}, nil }

	_, err := c.Get(0, build)
	require.NoError(t, err)
	_, err = c.Get(1, build)
	require.NoError(t, err)
	// touch 0 so 1 becomes the least-recently-used entry
	_, err = c.Get(0, build)
	require.NoError(t, err)
	_, err = c.Get(2, build)
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())

	// 0 is still cached; 1 was the entry evicted and must be rebuilt
	var rebuilt []int
	track := func(index int) ([]byte, error) {
		rebuilt = append(rebuilt, index)
		return []byte{byte(index)}, nil
	}
	_, err = c.Get(0, track)
	require.NoError(t, err)
	_, err = c.Get(1, track)
	require.NoError(t, err)
	require.Equal(t, []int{1}, rebuilt)
}

func TestDirtyEntryPinnedUntilFlush(t *testing.T) {
	c := New(2)
	c.Put(0, []byte("dirty"))

	build := func(index int) ([]byte, error) { return []byte{byte(index)}, nil }
	_, err := c.Get(1, build)
	require.NoError(t, err)
	_, err = c.Get(2, build)
	require.NoError(t, err)

	// Dirty index 0 survives eviction pressure; only a Ready entry (here,
	// the now-stale index 1) gets reclaimed to stay within capacity.
	require.Equal(t, 2, c.Len())
	pinned, err := c.Get(0, build)
	require.NoError(t, err)
	require.Equal(t, []byte("dirty"), pinned)
	data, err := c.Get(2, build)
	require.NoError(t, err)
	require.Equal(t, []byte{2}, data)

	require.NoError(t, c.Flush(0))
	_, err = c.Get(3, build)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
}
