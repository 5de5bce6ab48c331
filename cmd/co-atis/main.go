package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitFailed  = 1 // The ATIS run or the server failed
	ExitError   = 2 // Configuration or startup error
)

// runFailedError marks a failure of the work itself rather than of the
// setup around it
type runFailedError struct {
	err error
}

func (e *runFailedError) Error() string { return e.err.Error() }
func (e *runFailedError) Unwrap() error { return e.err }

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var runErr *runFailedError
		if errors.As(err, &runErr) {
			os.Exit(ExitFailed)
		}
		os.Exit(ExitError)
	}
}
