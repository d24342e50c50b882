package ewf

import (
	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/chunkcache"
	"github.com/dnpa/goewf/internal/chunktable"
	"github.com/dnpa/goewf/internal/codec"
	"github.com/dnpa/goewf/internal/zcodec"
)

func newCache(capacity int) *chunkcache.Cache {
	return chunkcache.New(capacity)
}

// effectiveMediaSize is the media size ReadAt should honor: on a write
// handle, bytes accepted via WriteAt are readable immediately even though
// the volume section's sector_count isn't settled until Close (spec.md §8:
// "write followed by read at the same offset without an intervening close
// returns exactly the bytes written").
func (h *Handle) effectiveMediaSize() int64 {
	size := h.MediaSize()
	if h.write == nil {
		return size
	}
	h.write.mu.Lock()
	defer h.write.mu.Unlock()
	if h.write.writeOffset > size {
		return h.write.writeOffset
	}
	return size
}

// ReadAt implements the read engine (spec.md §4.I): it clamps the request
// to the medium's bounds, walks the chunks it spans, and copies each
// chunk's relevant slice into buf.
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	if err := h.checkAborted(); err != nil {
		return 0, err
	}

	mediaSize := h.effectiveMediaSize()
	if offset < 0 {
		return 0, ewferr.New(ewferr.KindInvalidConfiguration, "Handle.ReadAt", "negative offset")
	}
	if offset >= mediaSize {
		return 0, nil
	}
	want := len(buf)
	if offset+int64(want) > mediaSize {
		want = int(mediaSize - offset)
	}

	chunkSize := int64(h.ChunkSize())
	copied := 0
	for copied < want {
		if err := h.checkAborted(); err != nil {
			return copied, err
		}

		cur := offset + int64(copied)
		logicalIndex := int(cur / chunkSize)
		chunkOff := cur % chunkSize
		inChunk := want - copied
		if remain := chunkSize - chunkOff; int64(inChunk) > remain {
			inChunk = int(remain)
		}

		chunk, corrupt, err := h.fetchChunk(logicalIndex)
		if err != nil {
			return copied, err
		}
		if corrupt {
			if !h.config.ReadZeroOnError {
				return copied, ewferr.New(ewferr.KindChunkCorrupt, "Handle.ReadAt", "chunk failed verification")
			}
			for i := 0; i < inChunk; i++ {
				buf[copied+i] = 0
			}
			copied += inChunk
			continue
		}

		end := int(chunkOff) + inChunk
		if end > len(chunk) {
			end = len(chunk)
			inChunk = end - int(chunkOff)
		}
		copy(buf[copied:copied+inChunk], chunk[chunkOff:end])
		copied += inChunk
	}
	return copied, nil
}

var corruptMarker = []byte{0xDE, 0xAD, 0xC0, 0xDE, 'c', 'o', 'r', 'r', 'u', 'p', 't'}

func isCorruptMarker(b []byte) bool {
	if len(b) != len(corruptMarker) {
		return false
	}
	for i := range b {
		if b[i] != corruptMarker[i] {
			return false
		}
	}
	return true
}

// fetchChunk returns logicalIndex's decompressed bytes via the cache,
// triggering a segment read plus decompression on a miss (spec.md §4.H/I).
// corrupt is true when a chunk fails verification (uncompressed trailing
// Adler-32 mismatch, or a decompression error) and read_zero_on_error is
// the caller's decision to make.
func (h *Handle) fetchChunk(logicalIndex int) (data []byte, corrupt bool, err error) {
	if h.write != nil {
		h.write.mu.Lock()
		if logicalIndex == h.write.dirtyIndex {
			buffered := make([]byte, len(h.write.dirty))
			copy(buffered, h.write.dirty)
			h.write.mu.Unlock()
			return buffered, false, nil
		}
		h.write.mu.Unlock()
	}

	raw, err := h.cache.Get(logicalIndex, func(index int) ([]byte, error) {
		entry, err := h.table.Get(index)
		if err != nil {
			return nil, err
		}
		r, err := h.segmentReader(entry.Segment)
		if err != nil {
			return nil, err
		}

		storedSize := h.storedSizeFor(index, entry)
		raw := make([]byte, storedSize)
		if _, err := r.ReadAt(raw, int64(entry.Offset)); err != nil {
			return nil, err
		}

		if entry.Compressed {
			plain, err := zcodec.Uncompress(raw, h.ChunkSize())
			if err != nil {
				return corruptMarker, nil
			}
			return plain, nil
		}

		if len(raw) < 4 {
			return corruptMarker, nil
		}
		payload := raw[:len(raw)-4]
		wantCRC, _ := codec.Uint32(raw[len(raw)-4:])
		if codec.Adler32(payload) != wantCRC {
			return corruptMarker, nil
		}
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}
	if isCorruptMarker(raw) {
		return nil, true, nil
	}
	return raw, false, nil
}

// storedSizeFor derives a chunk's on-disk size from the next entry's offset
// in the same segment (spec.md §3: "stored_size of entry i is derived by
// (a) the next entry's offset if same segment, (b) table_end - offset
// otherwise"). table_end is the segment's recorded sectors-run end, the
// offset its table section begins at.
func (h *Handle) storedSizeFor(index int, entry chunktable.Entry) int64 {
	if index+1 < h.table.Len() {
		next, err := h.table.Get(index + 1)
		if err == nil && next.Segment == entry.Segment && next.Offset > entry.Offset {
			return int64(next.Offset - entry.Offset)
		}
	}
	if end, ok := h.segSectorsEnd[entry.Segment]; ok {
		if size := end - int64(entry.Offset); size > 0 {
			return size
		}
	}
	return int64(h.ChunkSize()) + 4
}
