package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dnpa/goewf"
)

var exportTarget string
var exportVMDK bool

var exportCmd = &cobra.Command{
	Use:   "export <image.E01>",
	Short: "Stream a decompressed image out to a flat raw or VMDK file",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		if exportTarget == "" {
			return fmt.Errorf("export: -t/--target is required")
		}
		base := strings.TrimSuffix(args[0], ".E01")
		h, err := ewf.Open(base, ewf.DefaultConfig())
		if err != nil {
			return fmt.Errorf("export: open: %w", err)
		}
		defer h.Close()

		out, err := os.OpenFile(exportTarget, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("export: create target: %w", err)
		}
		defer out.Close()

		size := h.MediaSize()
		if exportVMDK {
			if err := writeVMDKDescriptor(exportTarget, size); err != nil {
				return err
			}
		}

		const batch = 4 << 20
		buf := make([]byte, batch)
		var offset int64
		for offset < size {
			n, err := h.ReadAt(buf, offset)
			if err != nil {
				return fmt.Errorf("export: read at %d: %w", offset, err)
			}
			if n == 0 {
				break
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("export: write at %d: %w", offset, err)
			}
			offset += int64(n)
		}
		fmt.Printf("exported %d bytes to %s\n", offset, exportTarget)
		return nil
	},
}

// writeVMDKDescriptor writes a monolithic-flat VMDK descriptor sibling
// pointing at exportTarget as its single flat extent, the same split the
// teacher's VMDK writer produced (descriptor text + separate flat data
// file) rather than a single sparse-extent VMDK.
func writeVMDKDescriptor(flatPath string, size int64) error {
	const sectorSize = 512
	sectors := size / sectorSize
	descPath := strings.TrimSuffix(flatPath, ".flat.vmdk") + ".vmdk"
	if descPath == flatPath {
		descPath = flatPath + ".vmdk"
	}
	flatName := flatPath
	if idx := strings.LastIndexByte(flatPath, '/'); idx >= 0 {
		flatName = flatPath[idx+1:]
	}

	desc := fmt.Sprintf(`# Disk DescriptorFile
version=1
CID=fffffffe
parentCID=ffffffff
createType="monolithicFlat"

RW %d FLAT "%s" 0

ddb.virtualHWVersion = "4"
ddb.geometry.sectors = "63"
`, sectors, flatName)

	return os.WriteFile(descPath, []byte(desc), 0o644)
}

func init() {
	exportCmd.Flags().StringVarP(&exportTarget, "target", "t", "", "output file path")
	exportCmd.Flags().BoolVar(&exportVMDK, "vmdk", false, "also write a monolithic-flat VMDK descriptor alongside the raw target")
	rootCmd.AddCommand(exportCmd)
}
