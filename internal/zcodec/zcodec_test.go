package zcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressUncompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 200)

	for _, level := range []Level{LevelNone, LevelFast, LevelBest} {
		compressed, err := Compress(src, level)
		require.NoError(t, err)

		got, err := Uncompress(compressed, len(src)/2) // deliberately undersized hint
		require.NoError(t, err)
		require.Equal(t, src, got)
	}
}

func TestUncompressGrowsOnOverflow(t *testing.T) {
	src := bytes.Repeat([]byte{0xA5}, 1<<20)
	compressed, err := Compress(src, LevelBest)
	require.NoError(t, err)

	got, err := Uncompress(compressed, 16) // far too small, forces multiple retries
	require.NoError(t, err)
	require.Equal(t, src, got)
}

func TestShouldStoreCompressed(t *testing.T) {
	require.False(t, ShouldStoreCompressed(LevelNone, 10, 100, 1.0))
	require.True(t, ShouldStoreCompressed(LevelFast, 99, 100, 1.0))
	require.False(t, ShouldStoreCompressed(LevelFast, 100, 100, 0.5))
	require.True(t, ShouldStoreCompressed(LevelFast, 40, 100, 0.5))
}
