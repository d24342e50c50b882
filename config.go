package ewf

import (
	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/zcodec"
)

const (
	minChunkSize       = 512
	defaultChunkSize   = 64 * 512          // 64 sectors/chunk at 512 bytes/sector
	minSegmentSize     = 1 << 20           // 1 MiB
	maxSegmentSize     = 2<<30 - 1         // 2 GiB - 1
	defaultSegmentSize = 1400 * (1 << 20)  // 1.4 GiB
	defaultCacheCap    = 16
)

// Codepage names a header-value text codepage. Config carries it, but
// header decoding (internal/headervalue) does not consult it: text is read
// as UTF-16 when a BOM is present and as UTF-8 otherwise.
type Codepage string

const (
	CodepageASCII  Codepage = "ascii"
	CodepageCP1252 Codepage = "cp1252"
	CodepageCP1251 Codepage = "cp1251"
)

// Config holds the parameters the core recognizes at Create/Open time
// (spec.md §6).
type Config struct {
	ChunkSize          int
	CompressionLevel   zcodec.Level
	CompressionThresh  float64
	MaxSegmentSize     int64
	HeaderCodepage     Codepage
	ReadZeroOnError    bool
	CacheCapacity      int
	WithSHA1           bool
	BestEffortSegments bool // open question resolution, see SPEC_FULL.md §6
	Delta              bool
}

// DefaultConfig returns the core's defaults: 64 sectors/chunk at 512
// bytes/sector, fast compression, 1.4 GiB segments, unconditional-compress
// threshold (the EWF1 behavior, see SPEC_FULL.md §6's Open Question
// resolution), 16-chunk cache.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         defaultChunkSize,
		CompressionLevel:  zcodec.LevelFast,
		CompressionThresh: 1.0,
		MaxSegmentSize:    defaultSegmentSize,
		HeaderCodepage:    CodepageASCII,
		ReadZeroOnError:   false,
		CacheCapacity:     defaultCacheCap,
	}
}

// Validate enforces spec.md §6's configuration bounds.
func (c Config) Validate() error {
	if c.ChunkSize < minChunkSize || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return ewferr.New(ewferr.KindInvalidConfiguration, "Config.Validate",
			"chunk_size must be a power of two >= 512")
	}
	if c.MaxSegmentSize < minSegmentSize || c.MaxSegmentSize > maxSegmentSize {
		return ewferr.New(ewferr.KindInvalidConfiguration, "Config.Validate",
			"max_segment_size out of [1MiB, 2GiB-1] range")
	}
	if c.CacheCapacity < 1 {
		return ewferr.New(ewferr.KindInvalidConfiguration, "Config.Validate",
			"cache_capacity must be >= 1")
	}
	return nil
}
