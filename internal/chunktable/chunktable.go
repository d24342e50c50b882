// Package chunktable implements the chunk offset index (spec.md component
// G): a dense, O(1)-lookup table mapping a logical chunk number to its
// location in a segment file, plus the delta-overlay stack a secondary
// (patch) write layers on top of a base image.
//
// Generalized from the teacher's TableSection/Table2Section/TableEntry and
// findAndReadChunk's linear scan (ewf.go) into a dense vector, per spec.md
// §4.G's O(1) lookup requirement.
package chunktable

import (
	"github.com/dnpa/goewf/ewferr"
)

// EntryFlagCompressed marks a table entry's chunk as zlib-compressed
// on-disk, mirroring the teacher's high-bit-set TableEntry convention.
const EntryFlagCompressed = uint32(1) << 31

// Entry is one chunk's location: which segment holds it, its offset into
// that segment's "sectors" data block, and whether it's stored compressed.
// Corrupt marks a placeholder entry for a chunk whose location was lost to
// unrecoverable table corruption (both table and table2 failed their
// payload checksum) rather than one that was simply never written.
type Entry struct {
	Segment    int
	Offset     uint64
	Compressed bool
	Corrupt    bool
}

// pack/unpack the on-disk 32-bit offset+flag word used by table/table2
// sections, matching the teacher's TableEntry encoding.
func packOffset(offset uint32, compressed bool) uint32 {
	if compressed {
		return offset | EntryFlagCompressed
	}
	return offset &^ EntryFlagCompressed
}

func unpackOffset(word uint32) (offset uint32, compressed bool) {
	compressed = word&EntryFlagCompressed != 0
	offset = word &^ EntryFlagCompressed
	return offset, compressed
}

// EncodeTableEntries renders entries as the on-disk table/table2 32-bit
// word array, relative to baseOffset (the sectors section's start).
func EncodeTableEntries(entries []Entry, baseOffset uint64) []uint32 {
	words := make([]uint32, len(entries))
	for i, e := range entries {
		rel := e.Offset - baseOffset
		words[i] = packOffset(uint32(rel), e.Compressed)
	}
	return words
}

// DecodeTableEntries parses a table/table2 word array into entries located
// in segment seg, relative to baseOffset.
func DecodeTableEntries(words []uint32, seg int, baseOffset uint64) []Entry {
	entries := make([]Entry, len(words))
	for i, w := range words {
		off, compressed := unpackOffset(w)
		entries[i] = Entry{Segment: seg, Offset: baseOffset + uint64(off), Compressed: compressed}
	}
	return entries
}

// overlay is one delta layer: a sparse set of entries that shadow the base
// table for the logical indices they cover. Later-pushed overlays shadow
// earlier ones, matching a secondary/patch write stacking on its base image.
type overlay struct {
	entries map[int]Entry
}

// Table is the chunk offset index for one logical image: a dense base
// vector plus zero or more delta overlays.
type Table struct {
	base     []Entry
	overlays []overlay
	delta    bool
}

// New returns an empty table for chunkCount logical chunks. delta enables
// non-sequential Put calls, the mode a delta/secondary write operates in.
func New(chunkCount int, delta bool) *Table {
	return &Table{base: make([]Entry, chunkCount), delta: delta}
}

// Len reports the logical chunk count.
func (t *Table) Len() int { return len(t.base) }

// Grow extends the base table to newLen entries, used when a streamed
// acquisition's final chunk count isn't known until the write completes.
// It is a no-op if the table is already at least newLen long.
func (t *Table) Grow(newLen int) {
	if newLen <= len(t.base) {
		return
	}
	grown := make([]Entry, newLen)
	copy(grown, t.base)
	t.base = grown
}

// Get resolves index's entry, walking overlays from most to least recent
// before falling back to the base table.
func (t *Table) Get(index int) (Entry, error) {
	if index < 0 || index >= len(t.base) {
		return Entry{}, ewferr.New(ewferr.KindInvalidConfiguration, "chunktable.Get", "index out of range")
	}
	for i := len(t.overlays) - 1; i >= 0; i-- {
		if e, ok := t.overlays[i].entries[index]; ok {
			return e, nil
		}
	}
	e := t.base[index]
	if e.Corrupt {
		return Entry{}, ewferr.New(ewferr.KindChunkCorrupt, "chunktable.Get", "chunk location lost to table corruption")
	}
	if e == (Entry{}) {
		return Entry{}, ewferr.New(ewferr.KindMissingSegment, "chunktable.Get", "no entry for chunk")
	}
	return e, nil
}

// CorruptEntries returns n placeholder entries marking chunks whose
// location was lost because both a segment's table and table2 sections
// failed their payload checksum (spec.md §4.D's "mark affected chunks
// corrupt but continue"). It preserves the logical index run those chunks
// occupy so later segments' entries stay correctly aligned.
func CorruptEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{Corrupt: true}
	}
	return entries
}

// PushOverlay opens a new delta layer on top of the current table. Writes
// made after this call land in the new overlay until another is pushed.
func (t *Table) PushOverlay() {
	t.overlays = append(t.overlays, overlay{entries: make(map[int]Entry)})
}

// Put records index's location. Outside delta mode, writes must be
// sequential: index must equal the next unfilled base slot, matching
// spec.md §4.K's append-only write discipline; violating that yields
// NonSequentialWrite.
func (t *Table) Put(index int, e Entry) error {
	if index < 0 || index >= len(t.base) {
		return ewferr.New(ewferr.KindInvalidConfiguration, "chunktable.Put", "index out of range")
	}
	if len(t.overlays) > 0 {
		t.overlays[len(t.overlays)-1].entries[index] = e
		return nil
	}
	if !t.delta {
		next := t.nextSequentialSlot()
		if index != next {
			return ewferr.New(ewferr.KindNonSequentialWrite, "chunktable.Put",
				"write must append at the next logical chunk")
		}
	}
	t.base[index] = e
	return nil
}

func (t *Table) nextSequentialSlot() int {
	for i, e := range t.base {
		if e == (Entry{}) {
			return i
		}
	}
	return len(t.base)
}

// MergeSecondary folds a table2 section's entries over the primary table
// section's, the teacher's table/table2 redundancy mechanism used to
// recover from a corrupt table section rather than to express overlays.
// Index-for-index, a non-zero table2 entry wins when it disagrees with the
// table entry already present.
func MergeSecondary(primary, secondary []Entry) []Entry {
	merged := make([]Entry, len(primary))
	copy(merged, primary)
	for i, e := range secondary {
		if i >= len(merged) {
			break
		}
		if e != (Entry{}) {
			merged[i] = e
		}
	}
	return merged
}
