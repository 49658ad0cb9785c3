// Package recovery guards long-running goroutines against panics.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Go runs fn on a fresh goroutine with panic logging. The bot's background
// tasks (read loop callbacks, monitor, heartbeat) run under it so a bug in
// one task cannot take the process down.
func Go(logger *slog.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is the deferred half of Go, usable directly when the goroutine is
// spawned elsewhere.
func Recover(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			slog.String("goroutine", name),
			slog.String("panic", fmt.Sprintf("%v", r)),
			slog.String("stack", string(debug.Stack())))
	}
}
