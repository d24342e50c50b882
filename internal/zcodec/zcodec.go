// Package zcodec is the compression adapter (spec.md component B): it wraps
// klauspost/compress/zlib with the grow-on-overflow protocol the write
// engine needs and the EWF1 compression-level-to-zlib-level mapping the
// original implementation uses (original_source/libewf/libewf_compression.c).
package zcodec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/dnpa/goewf/ewferr"
)

// Level mirrors the EWF media-values compression level, not a raw zlib
// level; Compress maps it the way libewf_compress does.
type Level uint8

const (
	LevelNone Level = 0
	LevelFast Level = 1
	LevelBest Level = 2
)

func (l Level) zlibLevel() int {
	switch l {
	case LevelNone:
		return zlib.NoCompression
	case LevelBest:
		return zlib.BestCompression
	case LevelFast:
		return zlib.BestSpeed
	default:
		return zlib.BestSpeed
	}
}

// Compress deflates src at the given level into a freshly allocated buffer.
// It has no grow-on-overflow retry, since the zlib.Writer grows its own
// output; CompressBound below gives the worst-case output size.
func Compress(src []byte, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level.zlibLevel())
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindCompression, "zcodec.Compress", "create zlib writer", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, ewferr.Wrap(ewferr.KindCompression, "zcodec.Compress", "write", err)
	}
	if err := w.Close(); err != nil {
		return nil, ewferr.Wrap(ewferr.KindCompression, "zcodec.Compress", "close", err)
	}
	return buf.Bytes(), nil
}

// Uncompress inflates src into dst, growing dst (by doubling, the
// grow-on-overflow protocol spec.md §2 calls for) until the payload fits or
// a non-buffer zlib error surfaces.
func Uncompress(src []byte, sizeHint int) ([]byte, error) {
	if sizeHint <= 0 {
		sizeHint = len(src) * 4
	}
	for {
		dst, err := uncompressInto(src, sizeHint)
		if err == nil {
			return dst, nil
		}
		if err == io.ErrShortBuffer {
			sizeHint *= 2
			continue
		}
		return nil, ewferr.Wrap(ewferr.KindCompression, "zcodec.Uncompress", "inflate", err)
	}
}

func uncompressInto(src []byte, sizeHint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	// Copy one byte past sizeHint: if that byte exists, the hint was too
	// small and the caller should retry with a bigger one.
	n, err := io.CopyN(buf, r, int64(sizeHint)+1)
	if err == nil && n > int64(sizeHint) {
		return nil, io.ErrShortBuffer
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressBound returns the worst-case compressed size for a chunk of n
// uncompressed bytes, sized the way the write engine's scratch buffer (spec.md
// §5, "compressBound(chunk_size)") is sized: zlib's deflate bound is
// n + n/1000 + 12, plus the 2-byte header and 4-byte Adler trailer zlib adds.
func CompressBound(n int) int {
	return n + n/1000 + 18
}

// ShouldStoreCompressed applies the compression-threshold policy (spec.md §9
// open question 2, resolved EWF1-style in SPEC_FULL.md §6): compressed
// output is accepted whenever compression is enabled and its size is below
// uncompressedSize * threshold. threshold == 1.0 means "always accept"
// (the EWF1 default).
func ShouldStoreCompressed(level Level, compressedSize, uncompressedSize int, threshold float64) bool {
	if level == LevelNone {
		return false
	}
	if threshold >= 1.0 {
		return true
	}
	return float64(compressedSize) < float64(uncompressedSize)*threshold
}
