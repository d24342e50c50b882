// Package ewf is the public façade for the read/write engine (spec.md
// component K): Open/Create/Close/ReadAt/WriteAt/Abort over a logical,
// sector-addressable medium backed by one or more EWF segment files.
//
// Grounded on the teacher's top-level EWFImage (ewf.go) for the façade
// shape (constructor, Initialize, mutex-guarded fields, Close) and on
// ongniud/wal's wal.go Write/rotate/Close for the rotate-on-threshold,
// multi-segment bookkeeping, and graceful close idiom.
package ewf

import (
	"sync"
	"sync/atomic"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/chunkcache"
	"github.com/dnpa/goewf/internal/chunktable"
	"github.com/dnpa/goewf/internal/headervalue"
	"github.com/dnpa/goewf/internal/integrity"
	"github.com/dnpa/goewf/internal/media"
	"github.com/dnpa/goewf/internal/segio"
)

// State is the handle's lifecycle stage (spec.md §4.K).
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpening:
		return "Opening"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Mode is the access mode a handle was opened/created with.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
	ModeWriteResume
)

// fileHeaderSize is the fixed prefix preceding every segment's first
// section: an 8-byte magic, fields_start[1], segment_number[2 LE],
// fields_end[2] (spec.md §6).
const fileHeaderSize = 13

var (
	sigEWF1 = []byte{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
	sigEWF2 = []byte{0x45, 0x56, 0x46, 0x32, 0x0D, 0x0A, 0x81, 0x00}
	sigL01  = []byte{0x4C, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
)

// Handle is the logical read/write image over one or more segment files.
// It owns the segment readers, chunk table, chunk cache, media values, and
// header-value store exclusively; a per-call seek offset is the caller's
// responsibility (spec.md §3's session-scoping note), ReadAt/WriteAt take
// an explicit offset instead.
type Handle struct {
	mu    sync.RWMutex
	state State
	mode  Mode

	basePath string
	ext      segio.Extension
	config   Config

	media   media.Values
	headers *headervalue.Store
	table   *chunktable.Table
	cache   *chunkcache.Cache

	segPaths []string // 1-based index -> path, populated on open
	readers  map[int]*segio.Reader

	// segSectorsEnd maps a 1-based segment index to the file offset where
	// its table section begins, i.e. the end of its chunk payload run. It
	// backstops storedSizeFor for a segment's last chunk, where there is no
	// next table entry to diff against.
	segSectorsEnd map[int]int64

	storedMD5 [16]byte
	haveMD5   bool

	write *writeState

	aborted atomic.Bool
}

// writeState isolates the single-writer-thread bookkeeping: the current
// segment's writer, its in-flight table accumulator, the dirty partial
// chunk, and the running digests (spec.md §4.J, §4.L).
type writeState struct {
	mu sync.Mutex

	writer      *segio.Writer
	segIndex    int
	segStart    int64 // offset of the current segment's sectors section header
	tableAcc    []chunktable.Entry
	nextChunk   int   // next logical chunk index this writer will flush
	writeOffset int64 // bytes accepted via WriteAt so far

	dirty      []byte
	dirtyIndex int // -1 when no partial chunk is buffered

	scratch []byte
	digests *integrity.Digests

	chunkCount int // target chunk count, grows as data streams in

	segment1Path        string
	volumePayloadOffset int64
}

// State reports the handle's current lifecycle stage.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Mode reports the access mode the handle was opened/created with.
func (h *Handle) Mode() Mode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mode
}

// Headers returns the merged header-value store (xheader > header2 >
// header preference already applied at open time).
func (h *Handle) Headers() *headervalue.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.headers
}

// Media returns the validated volume/disk geometry.
func (h *Handle) Media() media.Values {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.media
}

// StoredMD5 returns the MD5 digest recorded in the image's hash section at
// acquisition time, if present.
func (h *Handle) StoredMD5() ([16]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storedMD5, h.haveMD5
}

// MediaSize returns the logical medium length in bytes.
func (h *Handle) MediaSize() int64 {
	return int64(h.Media().MediaSize())
}

// ChunkSize returns the configured chunk length in bytes.
func (h *Handle) ChunkSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config.ChunkSize
}

// Abort flips the abort flag observed at every I/O loop boundary
// (spec.md §5). In-flight ReadAt/WriteAt calls return Aborted; Close
// afterward leaves the on-disk image's sealed-prefix segments intact.
func (h *Handle) Abort() {
	h.aborted.Store(true)
}

func (h *Handle) checkAborted() error {
	if h.aborted.Load() {
		return ewferr.New(ewferr.KindAborted, "Handle", "operation aborted")
	}
	return nil
}

// segmentReader returns the reader for 1-based index seg, opening it on
// demand and caching it for reuse (spec.md §4.C: "opened on demand during
// read").
func (h *Handle) segmentReader(seg int) (*segio.Reader, error) {
	h.mu.RLock()
	if r, ok := h.readers[seg]; ok {
		h.mu.RUnlock()
		return r, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.readers[seg]; ok {
		return r, nil
	}
	if seg < 1 || seg > len(h.segPaths) {
		return nil, ewferr.New(ewferr.KindMissingSegment, "Handle.segmentReader", "segment index out of range")
	}
	r, err := segio.OpenForRead(h.segPaths[seg-1])
	if err != nil {
		return nil, err
	}
	h.readers[seg] = r
	return r, nil
}

// Close flushes any pending write state, emits trailer sections, and
// releases every open segment file descriptor. Calling Close twice is a
// no-op returning nil.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return nil
	}
	h.state = StateClosing
	h.mu.Unlock()

	var firstErr error
	if h.write != nil {
		if err := h.closeWrite(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	h.mu.Lock()
	for _, r := range h.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.readers = nil
	h.state = StateClosed
	h.mu.Unlock()

	if h.aborted.Load() && firstErr == nil {
		return ewferr.New(ewferr.KindAborted, "Handle.Close", "handle was aborted")
	}
	return firstErr
}
