// Package media holds the volume/disk geometry values (spec.md component E)
// and the cross-validation rules from spec.md §3.
package media

import (
	"fmt"

	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/codec"
)

// MediaType mirrors the teacher's media-type constants (ewf.go).
type MediaType uint8

const (
	MediaTypeRemovable MediaType = 0x00
	MediaTypeFixed     MediaType = 0x01
	MediaTypeOptical   MediaType = 0x03
	MediaTypeLogical   MediaType = 0x0e
	MediaTypeRAM       MediaType = 0x10
)

// MediaFlags mirrors the teacher's media-flag bitmask constants.
type MediaFlags uint8

const (
	FlagImage    MediaFlags = 0x01
	FlagPhysical MediaFlags = 0x02
	FlagFastbloc MediaFlags = 0x04
	FlagTableau  MediaFlags = 0x08
)

// VolumeSize is the on-disk size of an EWF1 volume section payload (94
// bytes), matching the teacher's EWFSpecification.
const VolumeSize = 94

// Values is the in-memory, validated form of a volume section (spec.md §3).
type Values struct {
	MediaType        MediaType
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	SectorCount      uint64
	ErrorGranularity uint32
	CompressionLevel uint8
	MediaFlags       MediaFlags
	GUID             [16]byte
}

// ChunkSize returns sectors_per_chunk * bytes_per_sector.
func (v Values) ChunkSize() uint64 {
	return uint64(v.SectorsPerChunk) * uint64(v.BytesPerSector)
}

// MediaSize returns sectors * sector_size (spec.md §3).
func (v Values) MediaSize() uint64 {
	return v.SectorCount * uint64(v.BytesPerSector)
}

// Validate enforces the cross-validation the spec requires of every parsed
// or freshly constructed volume section.
func (v Values) Validate() error {
	if v.SectorsPerChunk == 0 || v.BytesPerSector == 0 {
		return ewferr.New(ewferr.KindInvalidConfiguration, "media.Validate",
			"sectors_per_chunk and bytes_per_sector must be non-zero")
	}
	maxChunks := uint64(v.ChunkCount) * uint64(v.SectorsPerChunk)
	if v.SectorCount > maxChunks {
		return ewferr.New(ewferr.KindInvalidConfiguration, "media.Validate",
			fmt.Sprintf("sector_count %d exceeds chunk_count*sectors_per_chunk %d", v.SectorCount, maxChunks))
	}
	return nil
}

// Encode serializes v into a 94-byte EWF1 volume/disk section payload. The
// field offsets match the teacher's EWFSpecification/DiskSMART layout
// (ewf.go) truncated to the fields spec.md §3 actually names.
func Encode(v Values) []byte {
	buf := make([]byte, VolumeSize)
	buf[0] = byte(v.MediaType)
	codec.PutUint32(buf[4:8], v.ChunkCount)
	codec.PutUint32(buf[8:12], v.SectorsPerChunk)
	codec.PutUint32(buf[12:16], v.BytesPerSector)
	codec.PutUint64(buf[16:24], v.SectorCount)
	buf[44] = byte(v.MediaFlags)
	buf[48] = v.CompressionLevel
	codec.PutUint32(buf[52:56], v.ErrorGranularity)
	copy(buf[60:76], v.GUID[:])
	return buf
}

// Decode parses a 94-byte EWF1 volume/disk section payload and validates it.
func Decode(buf []byte) (Values, error) {
	if len(buf) < VolumeSize {
		return Values{}, ewferr.New(ewferr.KindIO, "media.Decode",
			fmt.Sprintf("short volume section: need %d bytes, got %d", VolumeSize, len(buf)))
	}
	chunkCount, _ := codec.Uint32(buf[4:8])
	sectorsPerChunk, _ := codec.Uint32(buf[8:12])
	bytesPerSector, _ := codec.Uint32(buf[12:16])
	sectorCount, _ := codec.Uint64(buf[16:24])
	errorGranularity, _ := codec.Uint32(buf[52:56])

	v := Values{
		MediaType:        MediaType(buf[0]),
		ChunkCount:       chunkCount,
		SectorsPerChunk:  sectorsPerChunk,
		BytesPerSector:   bytesPerSector,
		SectorCount:      sectorCount,
		MediaFlags:       MediaFlags(buf[44]),
		CompressionLevel: buf[48],
		ErrorGranularity: errorGranularity,
	}
	copy(v.GUID[:], buf[60:76])
	if err := v.Validate(); err != nil {
		return Values{}, err
	}
	return v, nil
}
