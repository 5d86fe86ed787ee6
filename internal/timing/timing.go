// Package timing wraps a REPL command handler to log its elapsed
// execution time, mirroring the execution_time decorator of the
// original CLI.
package timing

import (
	"log/slog"
	"time"
)

// Handler is a REPL command handler: it receives the raw argument string
// that follows the command name and returns an error.
type Handler func(rest string) error

// Wrap returns a Handler that logs how long fn took under name, using
// logger, tagged with opID for correlation with the rest of that
// command's log lines.
func Wrap(name, opID string, logger *slog.Logger, fn Handler) Handler {
	return func(rest string) error {
		start := time.Now()
		err := fn(rest)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("command failed", "command", name, "op", opID, "elapsed", elapsed, "error", err)
			return err
		}
		logger.Info("command completed", "command", name, "op", opID, "elapsed", elapsed)
		return nil
	}
}
