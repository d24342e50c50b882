package ewf

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/headervalue"
	"github.com/dnpa/goewf/internal/media"
	"github.com/dnpa/goewf/internal/section"
	"github.com/dnpa/goewf/internal/segio"
	"github.com/dnpa/goewf/internal/zcodec"
)

func testVolume(sectorsPerChunk, bytesPerSector uint32, chunkCount uint32) media.Values {
	return media.Values{
		MediaType:        media.MediaTypeFixed,
		ChunkCount:       chunkCount,
		SectorsPerChunk:  sectorsPerChunk,
		BytesPerSector:   bytesPerSector,
		SectorCount:      uint64(chunkCount) * uint64(sectorsPerChunk),
		MediaFlags:       media.FlagImage,
		CompressionLevel: 1,
	}
}

func TestCreateWriteCloseOpenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	chunkSize := 64 * 512
	vol := testVolume(64, 512, 64) // 64 chunks target; acquisition streams fewer
	headers := headervalue.NewStore()
	headers.Set(headervalue.KeyCaseNumber, "CASE-1")

	cfg := DefaultConfig()
	cfg.ChunkSize = chunkSize
	cfg.MaxSegmentSize = minSegmentSize

	h, err := Create(base, vol, headers, cfg)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xA5}, chunkSize*3+512*7) // 3 full chunks + a short, sector-aligned tail chunk
	n, err := h.WriteAt(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	require.NoError(t, h.Close())

	r, err := Open(base, DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	got := make([]byte, len(data))
	n, err = r.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)

	v, ok := r.Headers().Get(headervalue.KeyCaseNumber)
	require.True(t, ok)
	require.Equal(t, "CASE-1", v)
}

func TestWriteAtRejectsNonSequentialOffset(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	cfg := DefaultConfig()
	cfg.ChunkSize = 512
	vol := testVolume(1, 512, 16)

	h, err := Create(base, vol, nil, cfg)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteAt(make([]byte, 512), 0)
	require.NoError(t, err)

	_, err = h.WriteAt(make([]byte, 512), int64(2*cfg.ChunkSize))
	require.Error(t, err)
	require.ErrorIs(t, err, ewferr.NonSequentialWrite)
}

func TestReadAtClampsToMediaSize(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	cfg := DefaultConfig()
	cfg.ChunkSize = 512
	vol := testVolume(1, 512, 4)

	h, err := Create(base, vol, nil, cfg)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x11}, 512*4)
	_, err = h.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	r, err := Open(base, DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 10)
	n, err := r.ReadAt(buf, r.MediaSize())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestCompressionRoundTripThroughZcodec(t *testing.T) {
	data := bytes.Repeat([]byte("forensic"), 1000)
	compressed, err := zcodec.Compress(data, zcodec.LevelBest)
	require.NoError(t, err)
	plain, err := zcodec.Uncompress(compressed, len(data))
	require.NoError(t, err)
	require.Equal(t, data, plain)
}

// A short final chunk stored uncompressed must not have its trailing Adler-32
// mis-sliced against the following table section's bytes (storedSizeFor's
// table_end fallback, spec.md §3).
func TestReadAtHandlesShortUncompressedFinalChunk(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	cfg := DefaultConfig()
	cfg.ChunkSize = 1024
	cfg.CompressionLevel = zcodec.LevelNone
	cfg.MaxSegmentSize = minSegmentSize
	vol := testVolume(2, 512, 3)

	h, err := Create(base, vol, nil, cfg)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x7E}, 1024+512) // one full chunk plus a short, sector-aligned tail
	_, err = h.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	r, err := Open(base, DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	got := make([]byte, len(data))
	n, err := r.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

// A write followed by a read at the same offset without an intervening
// Close must return exactly the bytes written, including the partial chunk
// still buffered in writeState.dirty (spec.md §8).
func TestReadAtSeesUnflushedWrites(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	cfg := DefaultConfig()
	cfg.ChunkSize = 512
	vol := testVolume(1, 512, 4)

	h, err := Create(base, vol, nil, cfg)
	require.NoError(t, err)
	defer h.Close()

	full := bytes.Repeat([]byte{0x22}, 512)
	_, err = h.WriteAt(full, 0)
	require.NoError(t, err)

	partial := bytes.Repeat([]byte{0x33}, 200)
	_, err = h.WriteAt(partial, 512)
	require.NoError(t, err)

	got := make([]byte, 512+len(partial))
	n, err := h.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(got), n)
	require.Equal(t, full, got[:512])
	require.Equal(t, partial, got[512:])
}

// When a segment's table section fails its payload checksum, scanSegments
// must fall back to table2 instead of aborting the whole open (spec.md
// §4.D).
func TestOpenRecoversFromCorruptTableViaTable2(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "case")

	cfg := DefaultConfig()
	cfg.ChunkSize = 512
	cfg.MaxSegmentSize = minSegmentSize
	vol := testVolume(1, 512, 4)

	h, err := Create(base, vol, nil, cfg)
	require.NoError(t, err)
	data := bytes.Repeat([]byte{0x99}, 512*4)
	_, err = h.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	segPath, err := segio.SegmentName(base, segio.ExtEWF, 1)
	require.NoError(t, err)

	tableStart := findSectionPayloadStart(t, segPath, section.TypeTable)
	flipByte(t, segPath, tableStart+12) // inside the entries array, not entry_count

	r, err := Open(base, DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	got := make([]byte, len(data))
	n, err := r.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)
}

func findSectionPayloadStart(t *testing.T, path string, typ string) int64 {
	t.Helper()
	r, err := segio.OpenForRead(path)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Seek(fileHeaderSize))
	for {
		ref, err := r.Next()
		if err == io.EOF {
			t.Fatalf("section %q not found", typ)
		}
		require.NoError(t, err)
		if ref.Header.Type == typ {
			return ref.PayloadStart
		}
	}
}

func flipByte(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()
	var b [1]byte
	_, err = f.ReadAt(b[:], offset)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], offset)
	require.NoError(t, err)
}
