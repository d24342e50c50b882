// Package headervalue implements the header-value store (spec.md component
// F): an opaque key->string map persisted across the header/header2/xheader
// sections as a tab-delimited, zlib-compressed, UTF-16/UTF-8 record.
//
// The BOM-sniffing decode is grounded on the teacher's ParseHeader
// (internal/ewf.go); the string<->section split mirrors
// original_source/libewf/libewf_case_data.h's ParseString/Parse pair.
package headervalue

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/zcodec"
)

// EnCase4 key tokens (line 3 of a "header"/"header2" record).
const (
	KeyUniqueDescription = "a"
	KeyCaseNumber        = "c"
	KeyEvidenceNumber    = "n"
	KeyExaminerName      = "e"
	KeyNotes             = "t"
	KeyVersion           = "av"
	KeyPlatform          = "ov"
	KeyAcquisitionDate   = "m"
	KeySystemDate        = "u"
	KeyPasswordHash      = "p"
	KeyCompressionLevel  = "r"
)

// EnCase5-7 key tokens, additional to the EnCase4 set above.
const (
	KeyModel        = "md"
	KeySerialNumber = "sn"
	KeyDeviceLabel  = "l"
	KeyProcessID    = "pid"
	KeyUnknownDC    = "dc"
	KeyExtents      = "ext"
)

// Source names a section header values can come from. Preference order on
// read is XHeader > Header2 > Header (spec.md §9).
type Source int

const (
	SourceHeader Source = iota
	SourceHeader2
	SourceXHeader
)

// Store is the opaque key->string map, keyed by the format's ASCII tokens.
type Store struct {
	values map[string]string
}

// NewStore returns an empty header-value store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Store) Set(key, value string) {
	s.values[key] = value
}

// Keys returns every key currently set, order unspecified.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Merge overlays other on top of s: values present in other replace s's,
// implementing the xheader > header2 > header preference order when called
// in header, header2, xheader order.
func (s *Store) Merge(other *Store) {
	for k, v := range other.values {
		s.values[k] = v
	}
}

// ParseRecord parses a decoded (UTF-8) header record: line 0 is a tier
// marker, line 1 is "main", line 2 is the tab-separated key list, line 3 is
// the tab-separated value list. Later lines (EnCase5-7 srce/sub tables) are
// ignored by this store, matching the teacher's scope.
func ParseRecord(record string) (*Store, error) {
	lines := strings.Split(record, "\n")
	if len(lines) < 4 {
		return nil, ewferr.New(ewferr.KindInvalidConfiguration, "headervalue.ParseRecord",
			"record has fewer than 4 lines")
	}
	keys := strings.Split(lines[2], "\t")
	values := strings.Split(lines[3], "\t")
	if len(keys) != len(values) {
		return nil, ewferr.New(ewferr.KindInvalidConfiguration, "headervalue.ParseRecord",
			"key/value line length mismatch")
	}
	store := NewStore()
	for i, k := range keys {
		store.Set(k, values[i])
	}
	return store, nil
}

// EncodeRecord renders store as the EnCase4-shaped tab-delimited record:
// tier marker, "main", key line, value line, trailing empty line.
func EncodeRecord(store *Store, keyOrder []string) string {
	var keys, values []string
	for _, k := range keyOrder {
		v, ok := store.Get(k)
		if !ok {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	var b strings.Builder
	b.WriteString("1\n")
	b.WriteString("main\n")
	b.WriteString(strings.Join(keys, "\t"))
	b.WriteString("\n")
	b.WriteString(strings.Join(values, "\t"))
	b.WriteString("\n\n")
	return b.String()
}

// DefaultEnCase4KeyOrder is the canonical key emission order for a
// header/header2 section.
var DefaultEnCase4KeyOrder = []string{
	KeyUniqueDescription, KeyCaseNumber, KeyEvidenceNumber, KeyExaminerName,
	KeyNotes, KeyVersion, KeyPlatform, KeyAcquisitionDate, KeySystemDate,
	KeyPasswordHash, KeyCompressionLevel,
}

// decodeText decodes a zlib-decompressed header payload, sniffing a UTF-16
// BOM the way the teacher's ParseHeader does; falls back to UTF-8 when no
// recognized BOM is present.
func decodeText(payload []byte) (string, error) {
	if len(payload) >= 2 && payload[0] == 0xfe && payload[1] == 0xff {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, payload)
		if err != nil {
			return "", ewferr.Wrap(ewferr.KindInvalidConfiguration, "headervalue.decodeText", "utf16be decode", err)
		}
		return string(out), nil
	}
	if len(payload) >= 2 && payload[0] == 0xff && payload[1] == 0xfe {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, payload)
		if err != nil {
			return "", ewferr.Wrap(ewferr.KindInvalidConfiguration, "headervalue.decodeText", "utf16le decode", err)
		}
		return string(out), nil
	}
	return string(payload), nil
}

// encodeText encodes a record string as UTF-16LE with BOM, the on-disk form
// the teacher's HeaderSection/Header2Section fields document.
func encodeText(record string) ([]byte, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(record))
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindInvalidConfiguration, "headervalue.encodeText", "utf16le encode", err)
	}
	return out, nil
}

// DecodeSection inflates a header/header2/xheader section payload (zlib
// compressed UTF-16/UTF-8 text) into a Store.
func DecodeSection(payload []byte) (*Store, error) {
	plain, err := zcodec.Uncompress(payload, len(payload)*4)
	if err != nil {
		return nil, ewferr.Wrap(ewferr.KindCompression, "headervalue.DecodeSection", "inflate", err)
	}
	text, err := decodeText(plain)
	if err != nil {
		return nil, err
	}
	return ParseRecord(text)
}

// EncodeSection deflates store into a header/header2/xheader section
// payload at the given compression level.
func EncodeSection(store *Store, keyOrder []string, level zcodec.Level) ([]byte, error) {
	record := EncodeRecord(store, keyOrder)
	encoded, err := encodeText(record)
	if err != nil {
		return nil, err
	}
	return zcodec.Compress(encoded, level)
}
