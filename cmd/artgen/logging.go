package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/img-ai-studio/artgen/core/pipeline"
	"github.com/mudler/xlog"
)

// newLogger builds a logger writing to w. Stdout carries the progress
// protocol and the status report, so logs must never go there.
func newLogger(level, format string, w io.Writer) *xlog.Logger {
	lvl := xlog.LogLevel(level)
	handler := xlog.NewHandler(format, w, &slog.HandlerOptions{Level: lvl.ToSlogLevel()})
	return xlog.NewLoggerWithHandler(handler, lvl)
}

// reportError prints the single ERROR line of a failed run and returns the
// exit code for it.
func reportError(w io.Writer, err error) int {
	xlog.Debug("run failed", "error", err, "kind", pipeline.KindOf(err))
	fmt.Fprintf(w, "ERROR: %s\n", strings.Join(strings.Fields(err.Error()), " "))
	return pipeline.ExitCode(err)
}
