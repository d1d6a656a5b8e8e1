// Package main provides the stagehand binary entry point.
// Stagehand is a human-gated workflow orchestrator: template-driven
// stage machines, chains of validated tasks, advisory file locks and
// per-role governance over file-backed state.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/c360studio/stagehand/commands"
	"github.com/c360studio/stagehand/governance"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Exit codes: 0 success, 1 validation/runtime failure, 2 governance
// violation.
const (
	exitFailure    = 1
	exitGovernance = 2
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFailure)
		}
	}()

	if err := commands.NewRootCommand(Version, BuildTime).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var denied *governance.DeniedError
		if errors.As(err, &denied) {
			os.Exit(exitGovernance)
		}
		os.Exit(exitFailure)
	}
}
