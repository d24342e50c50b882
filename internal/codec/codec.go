// Package codec implements the little-endian integer packing and the
// Adler-32 checksum used by every EWF section and table entry.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
)

// PutUint16 writes v little-endian into dst[0:2].
func PutUint16(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }

// PutUint32 writes v little-endian into dst[0:4].
func PutUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }

// PutUint64 writes v little-endian into dst[0:8].
func PutUint64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

// Uint16 reads a little-endian uint16 from src[0:2].
func Uint16(src []byte) (uint16, error) {
	if len(src) < 2 {
		return 0, fmt.Errorf("codec: need 2 bytes, got %d", len(src))
	}
	return binary.LittleEndian.Uint16(src), nil
}

// Uint32 reads a little-endian uint32 from src[0:4].
func Uint32(src []byte) (uint32, error) {
	if len(src) < 4 {
		return 0, fmt.Errorf("codec: need 4 bytes, got %d", len(src))
	}
	return binary.LittleEndian.Uint32(src), nil
}

// Uint64 reads a little-endian uint64 from src[0:8].
func Uint64(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, fmt.Errorf("codec: need 8 bytes, got %d", len(src))
	}
	return binary.LittleEndian.Uint64(src), nil
}

// Adler32 computes the RFC 1950 Adler-32 checksum, initial value 1.
func Adler32(data []byte) uint32 {
	return adler32.Checksum(data)
}
