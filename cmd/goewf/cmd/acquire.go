package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dnpa/goewf"
	"github.com/dnpa/goewf/internal/headervalue"
	"github.com/dnpa/goewf/internal/media"
	"github.com/dnpa/goewf/internal/zcodec"
)

var (
	acquireTarget          string
	acquireSectorsPerChunk int
	acquireSegmentSize     string
	acquireLevel           string
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <source>",
	Short: "Stream a source device or file into a new EWF image",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		level, err := parseLevel(acquireLevel)
		if err != nil {
			return err
		}
		segSize, err := parseSize(acquireSegmentSize)
		if err != nil {
			return err
		}
		if acquireTarget == "" {
			return fmt.Errorf("acquire: -t <target> is required")
		}

		src, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("acquire: open source: %w", err)
		}
		defer src.Close()

		const sectorSize = 512
		cfg := ewf.DefaultConfig()
		cfg.CompressionLevel = level
		cfg.MaxSegmentSize = segSize
		cfg.ChunkSize = acquireSectorsPerChunk * sectorSize

		vol := media.Values{
			MediaType:       media.MediaTypeFixed,
			SectorsPerChunk: uint32(acquireSectorsPerChunk),
			BytesPerSector:  sectorSize,
			MediaFlags:      media.FlagImage,
			ChunkCount:      1 << 16, // generous target; chunktable grows further if needed, patched down on close
		}

		headers := headervalue.NewStore()
		headers.Set(headervalue.KeyCaseNumber, "")

		h, err := ewf.Create(acquireTarget, vol, headers, cfg)
		if err != nil {
			return fmt.Errorf("acquire: create image: %w", err)
		}

		var offset int64
		buf := make([]byte, cfg.ChunkSize)
		for {
			n, readErr := io.ReadFull(src, buf)
			if n > 0 {
				if _, err := h.WriteAt(buf[:n], offset); err != nil {
					h.Abort()
					h.Close()
					return fmt.Errorf("acquire: write: %w", err)
				}
				offset += int64(n)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				break
			}
			if readErr != nil {
				h.Abort()
				h.Close()
				return fmt.Errorf("acquire: read source: %w", readErr)
			}
		}

		if err := h.Close(); err != nil {
			return fmt.Errorf("acquire: close image: %w", err)
		}
		fmt.Printf("acquired %d bytes into %s\n", offset, acquireTarget)
		return nil
	},
}

func parseLevel(s string) (zcodec.Level, error) {
	switch strings.ToLower(s) {
	case "", "fast":
		return zcodec.LevelFast, nil
	case "none":
		return zcodec.LevelNone, nil
	case "best":
		return zcodec.LevelBest, nil
	default:
		return 0, fmt.Errorf("unknown compression level %q", s)
	}
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return ewf.DefaultConfig().MaxSegmentSize, nil
	}
	var n int64
	var unit string
	if parsed, _ := fmt.Sscanf(s, "%d%s", &n, &unit); parsed < 1 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	switch strings.ToUpper(unit) {
	case "", "B":
		return n, nil
	case "K", "KB", "KIB":
		return n << 10, nil
	case "M", "MB", "MIB":
		return n << 20, nil
	case "G", "GB", "GIB":
		return n << 30, nil
	default:
		return 0, fmt.Errorf("unknown size unit %q", unit)
	}
}

func init() {
	acquireCmd.Flags().StringVarP(&acquireTarget, "target", "t", "", "destination image base path")
	acquireCmd.Flags().IntVarP(&acquireSectorsPerChunk, "sectors-per-chunk", "b", 64, "sectors per chunk")
	acquireCmd.Flags().StringVarP(&acquireSegmentSize, "segment-size", "S", "1400MiB", "maximum segment size")
	acquireCmd.Flags().StringVarP(&acquireLevel, "compression", "c", "fast", "compression level: none|fast|best")
	rootCmd.AddCommand(acquireCmd)
}
