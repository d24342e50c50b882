// Package cmd implements the illustrative CLI surface over the core engine
// (spec.md §6): acquire, verify, info, export. mount is deliberately not
// built; it belongs to a filesystem layer the core only ever exposes a
// read interface to.
//
// Grounded on sargunv/rom-tools' internal/cli package for cobra root+
// subcommand wiring (one var*Cmd per file, RunE returning error, init()
// registering with the parent).
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dnpa/goewf/ewferr"
)

var rootCmd = &cobra.Command{
	Use:   "goewf",
	Short: "Read and write Expert Witness Compression Format disk images",
}

// Execute runs the CLI, returning the RunE error of whichever subcommand
// ran (or a cobra usage error if none matched).
func Execute() error {
	return rootCmd.Execute()
}

// IsAborted reports whether err is (or wraps) an Aborted condition, the
// 130 exit code case.
func IsAborted(err error) bool {
	return errors.Is(err, ewferr.Aborted)
}

// IsIntegrityFailure reports whether err is (or wraps) an IntegrityMismatch,
// the 2 exit code case.
func IsIntegrityFailure(err error) bool {
	return errors.Is(err, ewferr.IntegrityMismatch)
}
