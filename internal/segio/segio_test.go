package segio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/section"
)

func TestSegmentNameNumericRange(t *testing.T) {
	name, err := SegmentName("/tmp/image", ExtEWF, 1)
	require.NoError(t, err)
	require.Equal(t, "/tmp/image.E01", name)

	name, err = SegmentName("/tmp/image", ExtEWF, 99)
	require.NoError(t, err)
	require.Equal(t, "/tmp/image.E99", name)
}

func TestSegmentNameAlphabeticRollover(t *testing.T) {
	name, err := SegmentName("/tmp/image", ExtEWF, 100)
	require.NoError(t, err)
	require.Equal(t, "/tmp/image.EAA", name)

	name, err = SegmentName("/tmp/image", ExtEWF, 101)
	require.NoError(t, err)
	require.Equal(t, "/tmp/image.EAB", name)
}

func TestParseSegmentIndexRoundTrip(t *testing.T) {
	for _, idx := range []int{1, 42, 99, 100, 101, 125} {
		name, err := SegmentName("base", ExtEWF, idx)
		require.NoError(t, err)
		got, err := ParseSegmentIndex(name)
		require.NoError(t, err)
		require.Equal(t, idx, got)
	}
}

func TestGlobDetectsGap(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	require.NoError(t, os.WriteFile(base+".E01", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(base+".E03", []byte("x"), 0o644))

	_, err := Glob(base, ExtEWF)
	require.Error(t, err)
	require.ErrorIs(t, err, ewferr.MissingSegment)
}

func TestGlobOrdersContiguousSet(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	require.NoError(t, os.WriteFile(base+".E02", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(base+".E01", []byte("x"), 0o644))

	paths, err := Glob(base, ExtEWF)
	require.NoError(t, err)
	require.Equal(t, []string{base + ".E01", base + ".E02"}, paths)
}

func TestWriterReaderSectionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.E01")

	w, err := CreateForWrite(path)
	require.NoError(t, err)

	payload := []byte("volume-payload")
	h := section.Header{Type: section.TypeVolume, Size: section.HeaderSize + uint64(len(payload))}
	h.NextOffset = uint64(w.Offset()) + h.Size
	_, err = w.WriteSection(h, payload)
	require.NoError(t, err)

	done := section.Header{Type: section.TypeDone, Size: section.HeaderSize}
	_, err = w.WriteSection(done, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenForRead(path)
	require.NoError(t, err)
	defer r.Close()

	ref, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, section.TypeVolume, ref.Header.Type)
	got, err := r.ReadPayload(ref)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	ref, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, section.TypeDone, ref.Header.Type)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}
