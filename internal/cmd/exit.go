package cmd

import (
	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/errors"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailed   = 1   // The run aborted on a terminal condition or an unexpected error
	ExitConfig   = 2   // Invalid configuration or input, detected before any tool ran
	ExitCanceled = 130 // Interrupted
)

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	var cfgErr *errors.ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrCanceled):
		return ExitCanceled
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.IsTerminal(err):
		return ExitFailed
	default:
		var invalid config.ValidationErrors
		if errors.As(err, &invalid) {
			return ExitConfig
		}
		return ExitFailed
	}
}

// ErrorMessage formats an error returned by Execute for stderr. Errors
// that stop a run before or during its work are fatal; the rest, such as
// usage mistakes, are plain errors.
func ErrorMessage(err error) string {
	if errors.Is(err, errors.ErrCanceled) {
		return "Canceled: " + err.Error()
	}
	if errors.GetSeverity(err) >= errors.SeverityCritical {
		return "Fatal: " + err.Error()
	}
	return "Error: " + err.Error()
}
