package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dnpa/goewf"
	"github.com/dnpa/goewf/internal/headervalue"
)

var infoCmd = &cobra.Command{
	Use:   "info <image.E01>",
	Short: "Print an image's geometry and header values",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		base := strings.TrimSuffix(args[0], ".E01")
		h, err := ewf.Open(base, ewf.DefaultConfig())
		if err != nil {
			return fmt.Errorf("info: open: %w", err)
		}
		defer h.Close()

		m := h.Media()
		fmt.Printf("media_type:        0x%02x\n", m.MediaType)
		fmt.Printf("media_size:        %d bytes\n", m.MediaSize())
		fmt.Printf("chunk_count:       %d\n", m.ChunkCount)
		fmt.Printf("sectors_per_chunk: %d\n", m.SectorsPerChunk)
		fmt.Printf("bytes_per_sector:  %d\n", m.BytesPerSector)
		fmt.Printf("sector_count:      %d\n", m.SectorCount)
		fmt.Printf("compression_level: %d\n", m.CompressionLevel)

		if sum, ok := h.StoredMD5(); ok {
			fmt.Printf("md5:               %x\n", sum)
		}

		for _, key := range []string{
			headervalue.KeyCaseNumber, headervalue.KeyEvidenceNumber,
			headervalue.KeyExaminerName, headervalue.KeyNotes,
			headervalue.KeyAcquisitionDate,
		} {
			if v, ok := h.Headers().Get(key); ok && v != "" {
				fmt.Printf("header[%s]:         %s\n", key, v)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
