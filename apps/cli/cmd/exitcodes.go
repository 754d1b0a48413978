package cmd

import "fmt"

// Exit codes for httpsession CLI
const (
	// ExitSuccess indicates every request completed with a 2xx/3xx status
	ExitSuccess = 0

	// ExitRequestFailure indicates a 4xx/5xx status or a failed schema check
	ExitRequestFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error or timeout
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64

	// ExitCanceled indicates requests were canceled by an interrupt
	ExitCanceled = 130
)

// ExitError carries the process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}
