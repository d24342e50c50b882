package ewf

import (
	"bytes"
	"io"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/chunktable"
	"github.com/dnpa/goewf/internal/codec"
	"github.com/dnpa/goewf/internal/headervalue"
	"github.com/dnpa/goewf/internal/media"
	"github.com/dnpa/goewf/internal/section"
	"github.com/dnpa/goewf/internal/segio"
)

// Open opens an existing EWF image rooted at basePath (the path sans its
// numbered extension, e.g. "/evidence/case" for "/evidence/case.E01") for
// reading. cfg.CacheCapacity and cfg.ReadZeroOnError apply to the read
// path and cfg.BestEffortSegments to segment discovery; the rest of cfg is
// ignored for an existing image, whose geometry comes from the on-disk
// volume section.
func Open(basePath string, cfg Config) (*Handle, error) {
	if cfg.CacheCapacity < 1 {
		cfg.CacheCapacity = defaultCacheCap
	}

	h := &Handle{
		state:    StateOpening,
		mode:     ModeReadOnly,
		basePath: basePath,
		ext:      segio.ExtEWF,
		config:   cfg,
		readers:  make(map[int]*segio.Reader),
		headers:  headervalue.NewStore(),
	}

	paths, err := segio.Glob(basePath, segio.ExtEWF)
	if err != nil {
		if !cfg.BestEffortSegments {
			return nil, err
		}
	}
	h.segPaths = paths

	if err := h.scanSegments(); err != nil {
		return nil, err
	}
	h.config.ChunkSize = int(h.media.ChunkSize())

	h.cache = newCache(cfg.CacheCapacity)
	h.mu.Lock()
	h.state = StateOpen
	h.mu.Unlock()
	return h, nil
}

// scanSegments walks every segment's section chain once, recovering the
// media geometry, merged header values, and a dense chunk table built from
// the table/table2 sections encountered (spec.md §4.G: "built lazily... all
// table sections are scanned and merged").
func (h *Handle) scanSegments() error {
	headerStore := headervalue.NewStore()
	header2Store := headervalue.NewStore()
	xheaderStore := headervalue.NewStore()
	var vol media.Values
	haveVolume := false

	var entries []chunktable.Entry
	var storedMD5 [16]byte
	haveMD5 := false
	segSectorsEnd := make(map[int]int64)
	lastTerminal := ""

	for seg := 1; seg <= len(h.segPaths); seg++ {
		r, err := segio.OpenForRead(h.segPaths[seg-1])
		if err != nil {
			return err
		}

		var sigBuf [fileHeaderSize]byte
		if _, err := r.ReadAt(sigBuf[:], 0); err != nil {
			r.Close()
			return ewferr.Wrap(ewferr.KindIO, "Handle.scanSegments", "read file header", err)
		}
		if !bytes.Equal(sigBuf[:8], sigEWF1) && !bytes.Equal(sigBuf[:8], sigEWF2) && !bytes.Equal(sigBuf[:8], sigL01) {
			r.Close()
			return ewferr.New(ewferr.KindBadSignature, "Handle.scanSegments", "unrecognized file signature")
		}
		if err := r.Seek(fileHeaderSize); err != nil {
			r.Close()
			return err
		}

		var segEntries []chunktable.Entry
		lastTerminal = ""
		tableOK := false
		tableBadCount := 0

		for {
			ref, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				r.Close()
				return err
			}
			if section.IsTerminal(ref.Header.Type) {
				lastTerminal = ref.Header.Type
			}

			switch ref.Header.Type {
			case section.TypeSectors:
				segSectorsEnd[seg] = int64(ref.Header.NextOffset)
			case section.TypeHeader:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				s, err := headervalue.DecodeSection(payload)
				if err != nil {
					r.Close()
					return ewferr.Wrap(ewferr.KindCrcMismatch, "Handle.scanSegments", "decode header", err)
				}
				headerStore.Merge(s)
			case section.TypeHeader2:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				s, err := headervalue.DecodeSection(payload)
				if err == nil {
					header2Store.Merge(s)
				}
			case section.TypeXHeader:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				s, err := headervalue.DecodeSection(payload)
				if err == nil {
					xheaderStore.Merge(s)
				}
			case section.TypeVolume, section.TypeDisk:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				v, err := media.Decode(payload)
				if err != nil {
					r.Close()
					return ewferr.Wrap(ewferr.KindCrcMismatch, "Handle.scanSegments", "decode volume", err)
				}
				vol = v
				haveVolume = true
			case section.TypeTable:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				base, words, ok, err := decodeTableSection(payload)
				if err != nil {
					r.Close()
					return err
				}
				if ok {
					segEntries = chunktable.DecodeTableEntries(words, seg, base)
					tableOK = true
				} else {
					// table's payload checksum failed; keep its declared
					// entry count so the logical index run stays aligned,
					// and hope table2 recovers the actual offsets.
					tableBadCount = len(words)
				}
			case section.TypeTable2:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				base, words, ok, err := decodeTableSection(payload)
				if err != nil {
					r.Close()
					return err
				}
				switch {
				case ok && tableOK:
					secondary := chunktable.DecodeTableEntries(words, seg, base)
					segEntries = chunktable.MergeSecondary(segEntries, secondary)
				case ok:
					segEntries = chunktable.DecodeTableEntries(words, seg, base)
					tableOK = true
				case tableOK:
					// table2 is bad but table already recovered; keep it.
				default:
					// both table and table2 failed their checksum: the
					// chunks this segment covers are unrecoverable, but
					// their count is still known from whichever section's
					// header survived, so later segments stay aligned.
					n := tableBadCount
					if len(words) > n {
						n = len(words)
					}
					segEntries = chunktable.CorruptEntries(n)
				}
			case section.TypeHash:
				payload, err := r.ReadPayload(ref)
				if err != nil {
					r.Close()
					return err
				}
				if len(payload) == 16 {
					copy(storedMD5[:], payload)
					haveMD5 = true
				}
			}
		}
		entries = append(entries, segEntries...)
		r.Close()
	}

	if lastTerminal == section.TypeNext && !h.config.BestEffortSegments {
		return ewferr.New(ewferr.KindMissingSegment, "Handle.scanSegments",
			"last segment ends with a next section but the following segment is absent")
	}
	if !haveVolume {
		return ewferr.New(ewferr.KindBadSignature, "Handle.scanSegments", "no volume section found in segment 1")
	}
	if err := vol.Validate(); err != nil {
		return err
	}

	merged := headervalue.NewStore()
	merged.Merge(headerStore)
	merged.Merge(header2Store)
	merged.Merge(xheaderStore)

	table := chunktable.New(int(vol.ChunkCount), false)
	for i, e := range entries {
		if i >= table.Len() {
			break
		}
		if e == (chunktable.Entry{}) {
			continue
		}
		table.Put(i, e)
	}

	h.media = vol
	h.headers = merged
	h.table = table
	h.storedMD5 = storedMD5
	h.haveMD5 = haveMD5
	h.segSectorsEnd = segSectorsEnd
	return nil
}

// decodeTableSection parses a table/table2 payload: {base_offset[8],
// entry_count[4], entries[entry_count], checksum[4]} (spec.md §3). err is
// reserved for a structurally unreadable payload (truncated file); a
// trailing checksum mismatch is reported via checksumOK instead of err,
// since entry_count itself is still trusted at face value even when the
// entries it counts may be corrupt — that is what lets scanSegments mark
// the right number of chunks corrupt when both table and table2 fail.
func decodeTableSection(payload []byte) (baseOffset uint64, words []uint32, checksumOK bool, err error) {
	if len(payload) < 16 {
		return 0, nil, false, ewferr.New(ewferr.KindIO, "decodeTableSection", "table payload too short")
	}
	base, err := codec.Uint64(payload[0:8])
	if err != nil {
		return 0, nil, false, err
	}
	count, err := codec.Uint32(payload[8:12])
	if err != nil {
		return 0, nil, false, err
	}
	entriesEnd := 12 + int(count)*4
	need := entriesEnd + 4
	if len(payload) < need {
		return 0, nil, false, ewferr.New(ewferr.KindIO, "decodeTableSection", "table entry count exceeds payload")
	}
	words = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		off := 12 + int(i)*4
		w, err := codec.Uint32(payload[off : off+4])
		if err != nil {
			return 0, nil, false, err
		}
		words[i] = w
	}
	gotCRC, err := codec.Uint32(payload[entriesEnd:need])
	if err != nil {
		return 0, nil, false, err
	}
	wantCRC := codec.Adler32(payload[:entriesEnd])
	return base, words, gotCRC == wantCRC, nil
}
