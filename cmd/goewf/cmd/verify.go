package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dnpa/goewf"
	"github.com/dnpa/goewf/ewferr"
	"github.com/dnpa/goewf/internal/integrity"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image.E01>",
	Short: "Re-read an image end to end and check its stored hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		base := strings.TrimSuffix(args[0], ".E01")
		h, err := ewf.Open(base, ewf.DefaultConfig())
		if err != nil {
			return fmt.Errorf("verify: open: %w", err)
		}
		defer h.Close()

		const readChunk = 4 << 20
		buf := make([]byte, readChunk)
		digests := integrity.New(false)
		var offset int64
		size := h.MediaSize()
		for offset < size {
			n, err := h.ReadAt(buf, offset)
			if err != nil {
				return fmt.Errorf("verify: read at %d: %w", offset, err)
			}
			if n == 0 {
				break
			}
			digests.Write(buf[:n])
			offset += int64(n)
		}

		sum := digests.MD5Sum()
		stored, ok := h.StoredMD5()
		if !ok {
			fmt.Printf("verified %d bytes, md5=%x (no stored hash to compare)\n", offset, sum)
			return nil
		}
		if sum != stored {
			return ewferr.New(ewferr.KindIntegrityMismatch, "verify",
				fmt.Sprintf("md5 mismatch: stored=%x computed=%x", stored, sum))
		}
		fmt.Printf("verified %d bytes, md5=%x matches stored hash\n", offset, sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
