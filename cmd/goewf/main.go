package main

import (
	"fmt"
	"os"

	"github.com/dnpa/goewf/cmd/goewf/cmd"
)

func main() {
	os.Exit(run())
}

// run maps cmd.Execute's outcome onto spec.md §6's exit codes: 0 success,
// 1 generic failure, 2 integrity failure, 130 aborted.
func run() int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "goewf: %v\n", err)
	switch {
	case cmd.IsAborted(err):
		return 130
	case cmd.IsIntegrityFailure(err):
		return 2
	default:
		return 1
	}
}
