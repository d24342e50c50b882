package chunktable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnpa/goewf/ewferr"
)

func TestPutGetSequential(t *testing.T) {
	tbl := New(3, false)
	require.NoError(t, tbl.Put(0, Entry{Segment: 1, Offset: 100}))
	require.NoError(t, tbl.Put(1, Entry{Segment: 1, Offset: 200, Compressed: true}))

	e, err := tbl.Get(1)
	require.NoError(t, err)
	require.Equal(t, Entry{Segment: 1, Offset: 200, Compressed: true}, e)
}

func TestPutRejectsNonSequential(t *testing.T) {
	tbl := New(3, false)
	err := tbl.Put(1, Entry{Segment: 1, Offset: 200})
	require.Error(t, err)
	require.ErrorIs(t, err, ewferr.NonSequentialWrite)
}

func TestDeltaModeAllowsOverlayWrites(t *testing.T) {
	tbl := New(3, false)
	require.NoError(t, tbl.Put(0, Entry{Segment: 1, Offset: 100}))
	require.NoError(t, tbl.Put(1, Entry{Segment: 1, Offset: 200}))
	require.NoError(t, tbl.Put(2, Entry{Segment: 1, Offset: 300}))

	tbl.PushOverlay()
	require.NoError(t, tbl.Put(0, Entry{Segment: 2, Offset: 50}))

	e, err := tbl.Get(0)
	require.NoError(t, err)
	require.Equal(t, 2, e.Segment)

	e, err = tbl.Get(1)
	require.NoError(t, err)
	require.Equal(t, 1, e.Segment)
}

func TestGetMissingEntry(t *testing.T) {
	tbl := New(2, false)
	_, err := tbl.Get(0)
	require.Error(t, err)
	require.ErrorIs(t, err, ewferr.MissingSegment)
}

func TestEncodeDecodeTableEntriesRoundTrip(t *testing.T) {
	entries := []Entry{
		{Segment: 1, Offset: 1000, Compressed: false},
		{Segment: 1, Offset: 2000, Compressed: true},
	}
	words := EncodeTableEntries(entries, 900)
	got := DecodeTableEntries(words, 1, 900)
	require.Equal(t, entries, got)
}

func TestGrowExtendsBaseWithoutDisturbingExisting(t *testing.T) {
	tbl := New(2, false)
	require.NoError(t, tbl.Put(0, Entry{Segment: 1, Offset: 100}))
	require.NoError(t, tbl.Put(1, Entry{Segment: 1, Offset: 200}))

	tbl.Grow(4)
	require.Equal(t, 4, tbl.Len())

	e, err := tbl.Get(1)
	require.NoError(t, err)
	require.Equal(t, Entry{Segment: 1, Offset: 200}, e)

	require.NoError(t, tbl.Put(2, Entry{Segment: 1, Offset: 300}))
	e, err = tbl.Get(2)
	require.NoError(t, err)
	require.Equal(t, Entry{Segment: 1, Offset: 300}, e)
}

func TestGrowIsNoOpWhenNotLarger(t *testing.T) {
	tbl := New(3, false)
	require.NoError(t, tbl.Put(0, Entry{Segment: 1, Offset: 100}))
	tbl.Grow(2)
	require.Equal(t, 3, tbl.Len())
}

func TestCorruptEntriesReadAsChunkCorrupt(t *testing.T) {
	tbl := New(3, false)
	require.NoError(t, tbl.Put(0, Entry{Segment: 1, Offset: 100}))
	for i, e := range CorruptEntries(2) {
		require.NoError(t, tbl.Put(1+i, e))
	}

	_, err := tbl.Get(1)
	require.Error(t, err)
	require.ErrorIs(t, err, ewferr.ChunkCorrupt)

	e, err := tbl.Get(0)
	require.NoError(t, err)
	require.Equal(t, Entry{Segment: 1, Offset: 100}, e)
}

func TestMergeSecondaryPrefersNonZero(t *testing.T) {
	primary := []Entry{{Segment: 1, Offset: 100}, {}}
	secondary := []Entry{{}, {Segment: 1, Offset: 200}}
	merged := MergeSecondary(primary, secondary)
	require.Equal(t, Entry{Segment: 1, Offset: 100}, merged[0])
	require.Equal(t, Entry{Segment: 1, Offset: 200}, merged[1])
}
