// Package section implements the EWF section header (spec.md component D):
// a 76-byte, CRC-protected, type-tagged record that chains forward via
// NextOffset. It mirrors the teacher's Section struct (ewf.go) but adds CRC
// verification on parse and CRC-computed-last emission, neither of which the
// teacher implements.
package section

import (
	"fmt"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/codec"
)

// HeaderSize is the on-disk size of an EWF1 section header.
const HeaderSize = 76

// Known section type tags (spec.md §4.D).
const (
	TypeHeader  = "header"
	TypeHeader2 = "header2"
	TypeXHeader = "xheader"
	TypeVolume  = "volume"
	TypeDisk    = "disk"
	TypeData    = "data"
	TypeTable   = "table"
	TypeTable2  = "table2"
	TypeSectors = "sectors"
	TypeLtree   = "ltree"
	TypeSession = "session"
	TypeError2  = "error2"
	TypeHash    = "hash"
	TypeDigest  = "digest"
	TypeXHash   = "xhash"
	TypeNext    = "next"
	TypeDone    = "done"
)

// Header is the parsed, in-memory form of a 76-byte section header.
type Header struct {
	Type       string
	NextOffset uint64
	Size       uint64
	CRC        uint32
}

// typeTag renders Type as the fixed 16-byte, NUL-padded on-disk field.
func typeTag(t string) [16]byte {
	var tag [16]byte
	copy(tag[:], t)
	return tag
}

// Encode serializes h into a 76-byte on-disk header, computing the CRC last
// over bytes [0:72) with the CRC field itself not present in that range
// (spec.md §4.A: "nested CRC fields that are zero-filled during emission" —
// here there is no nested CRC inside the checksummed range, the CRC field is
// simply appended after it).
func Encode(h Header) []byte {
	buf := make([]byte, HeaderSize)
	tag := typeTag(h.Type)
	copy(buf[0:16], tag[:])
	codec.PutUint64(buf[16:24], h.NextOffset)
	codec.PutUint64(buf[24:32], h.Size)
	// buf[32:72] is the 40-byte padding block, left zero.
	crc := codec.Adler32(buf[0:72])
	codec.PutUint32(buf[72:76], crc)
	return buf
}

// Decode parses a 76-byte on-disk header and verifies its CRC.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ewferr.New(ewferr.KindIO, "section.Decode",
			fmt.Sprintf("short header: need %d bytes, got %d", HeaderSize, len(buf)))
	}
	gotCRC, err := codec.Uint32(buf[72:76])
	if err != nil {
		return Header{}, ewferr.Wrap(ewferr.KindIO, "section.Decode", "read crc", err)
	}
	wantCRC := codec.Adler32(buf[0:72])
	if gotCRC != wantCRC {
		return Header{}, ewferr.New(ewferr.KindCrcMismatch, "section.Decode",
			fmt.Sprintf("header crc mismatch: on-disk 0x%08x computed 0x%08x", gotCRC, wantCRC))
	}

	var tag [16]byte
	copy(tag[:], buf[0:16])
	typ := trimTag(tag)

	next, err := codec.Uint64(buf[16:24])
	if err != nil {
		return Header{}, ewferr.Wrap(ewferr.KindIO, "section.Decode", "read next_offset", err)
	}
	size, err := codec.Uint64(buf[24:32])
	if err != nil {
		return Header{}, ewferr.Wrap(ewferr.KindIO, "section.Decode", "read size", err)
	}

	return Header{Type: typ, NextOffset: next, Size: size, CRC: gotCRC}, nil
}

func trimTag(tag [16]byte) string {
	n := 0
	for n < len(tag) && tag[n] != 0 {
		n++
	}
	return string(tag[:n])
}

// IsTerminal reports whether a section type ends a segment's section chain.
func IsTerminal(t string) bool {
	return t == TypeNext || t == TypeDone
}
