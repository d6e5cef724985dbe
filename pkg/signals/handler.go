package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mudler/xlog"
)

// TerminatedError is the cancellation cause of a context ended by a signal.
type TerminatedError struct {
	Signal os.Signal
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("interrupted by signal (%s)", e.Signal)
}

// ExitCode is the status the process should exit with after the signal.
func (e *TerminatedError) ExitCode() int {
	return ExitCode(e.Signal)
}

// NotifyContext returns a copy of parent that is cancelled by the first of
// sigs (SIGINT and SIGTERM when none are given), with a *TerminatedError as
// its cause. The run is expected to unwind and release its resources.
// Notification stops after the first signal, so a second one gets the
// default behaviour and kills the process.
func NotifyContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancelCause(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, sigs...)

	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			xlog.Info("Received termination signal, aborting", "signal", sig)
			cancel(&TerminatedError{Signal: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}

// ExitCode follows the shell convention of 128 plus the signal number.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
