package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cranesandcaff/inspectpack/cli/cmd"
	"github.com/cranesandcaff/inspectpack/internal/bundle"
	"github.com/cranesandcaff/inspectpack/internal/engine"
)

// Exit codes: 1 for runtime and store failures, 2 for input the analysis rejected
const (
	exitFailure  = 1
	exitBadInput = 2
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var parseErr *bundle.ParseError
	var optErr *engine.OptionError
	if errors.As(err, &parseErr) || errors.As(err, &optErr) {
		os.Exit(exitBadInput)
	}
	os.Exit(exitFailure)
}
