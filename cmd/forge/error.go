package main

import (
	"errors"
	"fmt"
	"os"

	fluxerr "github.com/nexusops/forge/pkg/errors"
)

type usageError struct {
	error
}

func newUsageError(msg string) usageError {
	return usageError{error: errors.New(msg)}
}

var errorWantedNoArgs = newUsageError("expected no (non-flag) arguments")

// exitError carries the process exit code for a pipeline outcome past
// cobra to main, which exits without reprinting: the run report has
// already been printed.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func (e exitError) Unwrap() error { return e.err }

// printHelp surfaces the help text attached to a typed engine error,
// the part written for a human rather than for a log.
func printHelp(err error) {
	var typed *fluxerr.Error
	if errors.As(err, &typed) && typed.Help != "" {
		fmt.Fprintln(os.Stderr, typed.Help)
	}
}
