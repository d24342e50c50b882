package ewf

import (
	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/chunktable"
	"github.com/dnpa/goewf/internal/codec"
	"github.com/dnpa/goewf/internal/headervalue"
	"github.com/dnpa/goewf/internal/integrity"
	"github.com/dnpa/goewf/internal/media"
	"github.com/dnpa/goewf/internal/section"
	"github.com/dnpa/goewf/internal/segio"
	"github.com/dnpa/goewf/internal/zcodec"
)

// Create starts a new, write-mode EWF image rooted at basePath. vol carries
// the geometry fixed at create time (spec.md §4.J: "all other fields are
// fixed at create"); chunk_count is a target, grown as data streams in for
// an acquisition whose final size isn't known upfront.
func Create(basePath string, vol media.Values, headers *headervalue.Store, cfg Config) (*Handle, error) {
	if cfg.ChunkSize == 0 {
		def := DefaultConfig()
		cfg.ChunkSize = def.ChunkSize
		cfg.CompressionLevel = def.CompressionLevel
		cfg.CompressionThresh = def.CompressionThresh
		cfg.MaxSegmentSize = def.MaxSegmentSize
		cfg.CacheCapacity = def.CacheCapacity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if headers == nil {
		headers = headervalue.NewStore()
	}

	h := &Handle{
		state:    StateOpening,
		mode:     ModeReadWrite,
		basePath: basePath,
		ext:      segio.ExtEWF,
		config:   cfg,
		media:    vol,
		headers:  headers,
		table:    chunktable.New(int(vol.ChunkCount), cfg.Delta),
		readers:  make(map[int]*segio.Reader),
		cache:    newCache(cfg.CacheCapacity),
	}

	bound := zcodec.CompressBound(cfg.ChunkSize)
	h.write = &writeState{
		dirtyIndex: -1,
		scratch:    make([]byte, bound),
		digests:    integrity.New(cfg.WithSHA1),
		chunkCount: int(vol.ChunkCount),
	}

	if err := h.startSegment(1); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.state = StateOpen
	h.mu.Unlock()
	return h, nil
}

// startSegment creates segment index, writes the file signature, header
// sections, the volume section (segment 1 only carries media geometry per
// spec.md §3), and a placeholder sectors-section header ready to receive
// chunk payloads.
func (h *Handle) startSegment(index int) error {
	path, err := segio.SegmentName(h.basePath, h.ext, index)
	if err != nil {
		return err
	}
	w, err := segio.CreateForWrite(path)
	if err != nil {
		return err
	}

	sig := sigEWF1
	fileHeader := make([]byte, fileHeaderSize)
	copy(fileHeader[0:8], sig)
	fileHeader[8] = 0x01
	codec.PutUint16(fileHeader[9:11], uint16(index))
	if _, err := w.WriteRaw(fileHeader); err != nil {
		return err
	}

	if index == 1 {
		if err := h.emitHeaderSections(w); err != nil {
			return err
		}
		volPayload := media.Encode(h.media)
		volHeaderOff := w.Offset()
		if err := h.emitSection(w, section.TypeVolume, volPayload); err != nil {
			return err
		}
		h.write.segment1Path = path
		h.write.volumePayloadOffset = volHeaderOff + section.HeaderSize
	}

	headerOff := w.Offset()
	placeholder := section.Header{Type: section.TypeSectors, Size: section.HeaderSize}
	if _, err := w.WriteSection(placeholder, nil); err != nil {
		return err
	}

	h.write.writer = w
	h.write.segIndex = index
	h.write.segStart = headerOff
	h.write.tableAcc = nil
	return nil
}

// emitHeaderSections writes header, header2, and xheader in that order, the
// tri-section emission spec.md §9 requires for compatibility with readers
// that only understand one tier.
func (h *Handle) emitHeaderSections(w *segio.Writer) error {
	level := h.config.CompressionLevel
	payload, err := headervalue.EncodeSection(h.headers, headervalue.DefaultEnCase4KeyOrder, level)
	if err != nil {
		return err
	}
	if err := h.emitSection(w, section.TypeHeader, payload); err != nil {
		return err
	}
	if err := h.emitSection(w, section.TypeHeader2, payload); err != nil {
		return err
	}
	return h.emitSection(w, section.TypeXHeader, payload)
}

// emitSection appends a complete, self-contained section (header size
// known up front) and advances the writer past it.
func (h *Handle) emitSection(w *segio.Writer, typ string, payload []byte) error {
	size := uint64(section.HeaderSize + len(payload))
	hdr := section.Header{Type: typ, Size: size, NextOffset: uint64(w.Offset()) + size}
	_, err := w.WriteSection(hdr, payload)
	return err
}

// WriteAt implements the write engine's entry point (spec.md §4.J).
// Writes must be sequential in non-delta mode: offset must equal the
// number of bytes accepted so far.
func (h *Handle) WriteAt(buf []byte, offset int64) (int, error) {
	if err := h.checkAborted(); err != nil {
		return 0, err
	}
	if h.write == nil {
		return 0, ewferr.New(ewferr.KindInvalidConfiguration, "Handle.WriteAt", "handle not opened for write")
	}

	h.write.mu.Lock()
	defer h.write.mu.Unlock()

	if !h.config.Delta && offset != h.write.writeOffset {
		return 0, ewferr.New(ewferr.KindNonSequentialWrite, "Handle.WriteAt",
			"write offset must equal bytes written so far")
	}

	chunkSize := h.config.ChunkSize
	written := 0
	for written < len(buf) {
		if err := h.checkAborted(); err != nil {
			return written, err
		}

		if h.write.dirtyIndex < 0 {
			h.write.dirtyIndex = h.write.nextChunk
			h.write.dirty = make([]byte, 0, chunkSize)
		}

		space := chunkSize - len(h.write.dirty)
		n := len(buf) - written
		if n > space {
			n = space
		}
		h.write.dirty = append(h.write.dirty, buf[written:written+n]...)
		written += n

		if len(h.write.dirty) == chunkSize {
			if err := h.flushDirtyChunk(); err != nil {
				return written, err
			}
		}
	}

	h.write.writeOffset += int64(written)
	return written, nil
}

// flushDirtyChunk compresses the buffered chunk, decides compressed vs
// uncompressed-with-CRC storage, appends it to the current segment,
// rotates to a new segment if the projected size would exceed
// max_segment_size, and records the chunk's table entry (spec.md §4.J). It
// marks the chunk Dirty in the read cache as soon as its logical bytes are
// known and Flushes it once the table entry lands, so a concurrent read
// sees the cache hit instead of a miss against a table entry that isn't
// there yet.
func (h *Handle) flushDirtyChunk() error {
	ws := h.write
	payload := ws.dirty
	index := ws.dirtyIndex

	ws.digests.Write(payload)
	h.cache.Put(index, payload)

	compressed, err := zcodec.Compress(payload, h.config.CompressionLevel)
	if err != nil {
		return ewferr.Wrap(ewferr.KindCompression, "Handle.flushDirtyChunk", "compress", err)
	}

	var stored []byte
	useCompressed := zcodec.ShouldStoreCompressed(h.config.CompressionLevel, len(compressed), len(payload), h.config.CompressionThresh)
	if useCompressed {
		stored = compressed
	} else {
		crc := codec.Adler32(payload)
		crcBytes := make([]byte, 4)
		codec.PutUint32(crcBytes, crc)
		stored = append(append([]byte{}, payload...), crcBytes...)
	}

	projected := ws.writer.Offset() + int64(len(stored)) + section.HeaderSize*3
	if projected > h.config.MaxSegmentSize && len(ws.tableAcc) > 0 {
		if err := h.rotateSegment(); err != nil {
			return err
		}
	}

	off := ws.writer.Offset()
	if _, err := ws.writer.WriteRaw(stored); err != nil {
		return err
	}

	if index >= h.table.Len() {
		h.table.Grow(index + 1)
	}
	entry := chunktable.Entry{Segment: ws.segIndex, Offset: uint64(off), Compressed: useCompressed}
	if err := h.table.Put(index, entry); err != nil {
		return err
	}
	if err := h.cache.Flush(index); err != nil {
		return err
	}
	ws.tableAcc = append(ws.tableAcc, entry)
	ws.nextChunk++
	ws.dirty = nil
	ws.dirtyIndex = -1

	if index+1 > ws.chunkCount {
		ws.chunkCount = index + 1
		h.media.ChunkCount = uint32(ws.chunkCount)
	}
	return nil
}

// rotateSegment seals the current segment's table/table2/next trailer and
// opens the next one (spec.md §4.J step 2).
func (h *Handle) rotateSegment() error {
	ws := h.write
	if err := h.sealSegment(false); err != nil {
		return err
	}
	return h.startSegment(ws.segIndex + 1)
}

// sealSegment backfills the sectors-section header with its final size,
// then appends table, table2, and either a next (continuation) section or,
// when final, a hash section followed by done.
func (h *Handle) sealSegment(final bool) error {
	ws := h.write
	sectorsEnd := ws.writer.Offset()
	sectorsSize := uint64(sectorsEnd - ws.segStart)
	sectorsHeader := section.Header{Type: section.TypeSectors, Size: sectorsSize, NextOffset: uint64(sectorsEnd)}
	if err := ws.writer.PatchAt(section.Encode(sectorsHeader), ws.segStart); err != nil {
		return err
	}

	tablePayload := encodeTableSection(ws.tableAcc, uint64(ws.segStart+section.HeaderSize))
	if err := h.emitSection(ws.writer, section.TypeTable, tablePayload); err != nil {
		return err
	}
	if err := h.emitSection(ws.writer, section.TypeTable2, tablePayload); err != nil {
		return err
	}

	if final {
		md5sum := ws.digests.MD5Sum()
		if err := h.emitSection(ws.writer, section.TypeHash, md5sum[:]); err != nil {
			return err
		}
		return h.emitSection(ws.writer, section.TypeDone, nil)
	}
	return h.emitSection(ws.writer, section.TypeNext, nil)
}

// encodeTableSection renders the accumulated entries as a table/table2
// payload: {base_offset[8], entry_count[4], entries[...], checksum[4]}. The
// trailing Adler-32 checksum covers every byte before it and is the
// redundancy mechanism open.go's scanSegments relies on to fall back from a
// corrupt table section to its table2 counterpart (spec.md §4.D).
func encodeTableSection(entries []chunktable.Entry, baseOffset uint64) []byte {
	words := chunktable.EncodeTableEntries(entries, baseOffset)
	entriesEnd := 12 + len(words)*4
	buf := make([]byte, entriesEnd+4)
	codec.PutUint64(buf[0:8], baseOffset)
	codec.PutUint32(buf[8:12], uint32(len(words)))
	for i, w := range words {
		off := 12 + i*4
		codec.PutUint32(buf[off:off+4], w)
	}
	codec.PutUint32(buf[entriesEnd:], codec.Adler32(buf[:entriesEnd]))
	return buf
}

// closeWrite flushes any final partial chunk, emits the last segment's
// trailer, and patches segment 1's volume section with the final
// sector_count (spec.md §4.J: "Update segment 1's volume section in place
// only for fields determined post-write").
func (h *Handle) closeWrite() error {
	ws := h.write
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if len(ws.dirty) > 0 {
		if err := h.flushFinalPartialChunk(); err != nil {
			return err
		}
	}

	if err := h.sealSegment(true); err != nil {
		return err
	}
	if err := ws.writer.Sync(); err != nil {
		return err
	}
	if err := ws.writer.Close(); err != nil {
		return err
	}

	return h.patchFinalSectorCount()
}

// flushFinalPartialChunk flushes a short trailing chunk at stream end,
// where the normal full-chunk trigger in WriteAt never fires.
func (h *Handle) flushFinalPartialChunk() error {
	return h.flushDirtyChunk()
}

// patchFinalSectorCount rewrites segment 1's on-disk volume section with
// the final chunk_count and sector_count a streamed acquisition settled on,
// leaving every other field as fixed at create (spec.md §4.J).
func (h *Handle) patchFinalSectorCount() error {
	h.media.SectorCount = uint64(h.write.writeOffset) / uint64(h.media.BytesPerSector)
	h.media.ChunkCount = uint32(h.write.nextChunk)

	w, err := segio.OpenForPatch(h.write.segment1Path)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.PatchAt(media.Encode(h.media), h.write.volumePayloadOffset)
}
