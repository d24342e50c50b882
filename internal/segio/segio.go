// Package segio implements segment file I/O (spec.md component C):
// numbered-filename globbing, sequential section readers/writers over
// *os.File, and the contiguity check that turns a gap in the numbered set
// into MissingSegment.
//
// The forward-linked-list section traversal is grounded on the teacher's
// Parse() (ewf.go) walking sections via NextOffset; the numbered-file glob
// and next-segment creation idiom is grounded on ongniud/wal's wal.go
// initialize() directory scan and rotate().
package segio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/section"
)

// Extension selects the segment-number letter family: 'E' for EWF1/EWF2
// full images, 'L' for logical (L01) evidence files, 's' for SMART.
type Extension byte

const (
	ExtEWF     Extension = 'E'
	ExtLogical Extension = 'L'
	ExtSMART   Extension = 's'
)

// SegmentName renders the numbered filename for index (1-based): .E01
// through .E99, then .EAA, .EAB, ... per spec.md §4.C's base-26 rollover.
func SegmentName(basePath string, ext Extension, index int) (string, error) {
	if index < 1 {
		return "", ewferr.New(ewferr.KindInvalidConfiguration, "segio.SegmentName", "index must be >= 1")
	}
	suffix, err := segmentSuffix(index)
	if err != nil {
		return "", err
	}
	return basePath + "." + string(ext) + suffix, nil
}

// segmentSuffix renders the two-character numeric/alphabetic tail: "01".."99"
// for indices 1-99, then "AA".."ZZ" for 100 and beyond.
func segmentSuffix(index int) (string, error) {
	if index <= 99 {
		return fmt.Sprintf("%02d", index), nil
	}
	n := index - 100 // 0-based count into the AA.. sequence
	if n >= 26*26 {
		return "", ewferr.New(ewferr.KindInvalidConfiguration, "segio.segmentSuffix", "segment index exceeds EZZ range")
	}
	hi := byte('A' + n/26)
	lo := byte('A' + n%26)
	return string([]byte{hi, lo}), nil
}

// ParseSegmentIndex recovers the 1-based segment index from a filename
// produced by SegmentName.
func ParseSegmentIndex(name string) (int, error) {
	if len(name) < 3 {
		return 0, ewferr.New(ewferr.KindInvalidConfiguration, "segio.ParseSegmentIndex", "name too short")
	}
	suffix := name[len(name)-2:]
	if suffix[0] >= '0' && suffix[0] <= '9' {
		var n int
		if _, err := fmt.Sscanf(suffix, "%02d", &n); err != nil {
			return 0, ewferr.Wrap(ewferr.KindInvalidConfiguration, "segio.ParseSegmentIndex", "parse numeric suffix", err)
		}
		return n, nil
	}
	if suffix[0] < 'A' || suffix[0] > 'Z' || suffix[1] < 'A' || suffix[1] > 'Z' {
		return 0, ewferr.New(ewferr.KindInvalidConfiguration, "segio.ParseSegmentIndex", "unrecognized suffix")
	}
	n := int(suffix[0]-'A')*26 + int(suffix[1]-'A')
	return n + 100, nil
}

// Glob enumerates basePath's numbered segment files, sorts them ascending,
// and asserts contiguity starting at 1. A gap fails with MissingSegment.
func Glob(basePath string, ext Extension) ([]string, error) {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindIO, "segio.Glob", "read directory", err)
	}

	type candidate struct {
		index int
		path  string
	}
	var found []candidate
	prefix := base + "." + string(ext)
	for _, de := range entries {
		name := de.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		idx, err := ParseSegmentIndex(name)
		if err != nil {
			continue
		}
		found = append(found, candidate{index: idx, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	paths := make([]string, 0, len(found))
	for i, c := range found {
		want := i + 1
		if c.index != want {
			return nil, ewferr.New(ewferr.KindMissingSegment, "segio.Glob",
				fmt.Sprintf("gap in segment set: expected segment %d, found %d", want, c.index))
		}
		paths = append(paths, c.path)
	}
	if len(paths) == 0 {
		return nil, ewferr.New(ewferr.KindMissingSegment, "segio.Glob", "no segment files found")
	}
	return paths, nil
}

// SectionRef describes one section's location within a segment file,
// yielded by Reader.Next without materializing its payload.
type SectionRef struct {
	Header       section.Header
	PayloadStart int64
	PayloadSize  int64
}

// Reader iterates a segment file's forward-linked section chain, tolerating
// unknown section types by skipping via NextOffset.
type Reader struct {
	f   *os.File
	pos int64
}

// OpenForRead opens path for sequential section iteration.
func OpenForRead(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindIO, "segio.OpenForRead", "open", err)
	}
	return &Reader{f: f}, nil
}

// Next reads the section header at the reader's current position and
// advances past it. It returns io.EOF once a terminal (next/done) section
// has been consumed.
func (r *Reader) Next() (SectionRef, error) {
	buf := make([]byte, section.HeaderSize)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return SectionRef{}, io.EOF
		}
		return SectionRef{}, ewferr.Wrap(ewferr.KindIO, "segio.Reader.Next", "read header", err)
	}
	h, err := section.Decode(buf)
	if err != nil {
		return SectionRef{}, err
	}

	payloadStart := r.pos + section.HeaderSize
	payloadSize := int64(h.Size) - section.HeaderSize
	if payloadSize < 0 {
		payloadSize = 0
	}

	ref := SectionRef{Header: h, PayloadStart: payloadStart, PayloadSize: payloadSize}

	if section.IsTerminal(h.Type) {
		return ref, nil
	}
	next := int64(h.NextOffset)
	if next <= r.pos {
		return SectionRef{}, ewferr.New(ewferr.KindChunkCorrupt, "segio.Reader.Next", "non-increasing next_offset")
	}
	if _, err := r.f.Seek(next, io.SeekStart); err != nil {
		return SectionRef{}, ewferr.Wrap(ewferr.KindIO, "segio.Reader.Next", "seek to next section", err)
	}
	r.pos = next
	return ref, nil
}

// ReadPayload reads a section's payload given its ref.
func (r *Reader) ReadPayload(ref SectionRef) ([]byte, error) {
	buf := make([]byte, ref.PayloadSize)
	if _, err := r.f.ReadAt(buf, ref.PayloadStart); err != nil {
		return nil, ewferr.Wrap(ewferr.KindIO, "segio.Reader.ReadPayload", "read", err)
	}
	return buf, nil
}

// ReadAt exposes the underlying file's random access, used by the chunk
// cache to fetch a chunk payload directly by absolute offset.
func (r *Reader) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := r.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, ewferr.Wrap(ewferr.KindIO, "segio.Reader.ReadAt", "read", err)
	}
	return n, nil
}

// Seek repositions the reader's section-chain cursor, used once after
// consuming a fixed-size raw prefix (the file signature) that precedes the
// first section header.
func (r *Reader) Seek(offset int64) error {
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return ewferr.Wrap(ewferr.KindIO, "segio.Reader.Seek", "seek", err)
	}
	r.pos = offset
	return nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error { return r.f.Close() }

// Writer appends sections sequentially to a newly created segment file.
type Writer struct {
	f   *os.File
	pos int64
}

// CreateForWrite creates path, truncating any existing file.
func CreateForWrite(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindIO, "segio.CreateForWrite", "create", err)
	}
	return &Writer{f: f}, nil
}

// OpenForPatch reopens an already-sealed segment file for in-place byte
// patching (e.g. updating segment 1's volume section post-acquisition). It
// does not support WriteSection/WriteRaw append semantics; only PatchAt.
func OpenForPatch(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindIO, "segio.OpenForPatch", "open", err)
	}
	return &Writer{f: f}, nil
}

// WriteSection appends a section header followed by payload, returning the
// header's on-disk offset.
func (w *Writer) WriteSection(h section.Header, payload []byte) (int64, error) {
	off := w.pos
	buf := section.Encode(h)
	if _, err := w.f.WriteAt(buf, off); err != nil {
		return 0, ewferr.Wrap(ewferr.KindIO, "segio.Writer.WriteSection", "write header", err)
	}
	if len(payload) > 0 {
		if _, err := w.f.WriteAt(payload, off+section.HeaderSize); err != nil {
			return 0, ewferr.Wrap(ewferr.KindIO, "segio.Writer.WriteSection", "write payload", err)
		}
	}
	w.pos = off + int64(h.Size)
	return off, nil
}

// WriteRaw appends buf verbatim at the writer's current position, used for
// the fixed-size file signature prefix that precedes the first section.
func (w *Writer) WriteRaw(buf []byte) (int64, error) {
	off := w.pos
	if _, err := w.f.WriteAt(buf, off); err != nil {
		return 0, ewferr.Wrap(ewferr.KindIO, "segio.Writer.WriteRaw", "write", err)
	}
	w.pos = off + int64(len(buf))
	return off, nil
}

// PatchAt overwrites bytes at an already-written offset without disturbing
// the writer's append cursor, used to backfill a section header (size,
// next_offset) once its payload's final length is known.
func (w *Writer) PatchAt(buf []byte, offset int64) error {
	if _, err := w.f.WriteAt(buf, offset); err != nil {
		return ewferr.Wrap(ewferr.KindIO, "segio.Writer.PatchAt", "write", err)
	}
	return nil
}

// Offset reports the writer's current append position.
func (w *Writer) Offset() int64 { return w.pos }

// Sync flushes the segment file to stable storage.
func (w *Writer) Sync() error {
	if err := w.f.Sync(); err != nil {
		return ewferr.Wrap(ewferr.KindIO, "segio.Writer.Sync", "fsync", err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (w *Writer) Close() error { return w.f.Close() }
