// Package progress implements the line protocol a supervising process reads
// from stdout while a generation runs:
//
//	PROGRESS:<percent>
//	STATUS:<text>
//	SUCCESS
//
// Any other line is informational.
package progress

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mudler/xlog"
	"github.com/schollz/progressbar/v3"
)

const (
	ProgressPrefix = "PROGRESS:"
	StatusPrefix   = "STATUS:"
	SuccessLine    = "SUCCESS"
)

type Reporter struct {
	mu   sync.Mutex
	out  *bufio.Writer
	last int
	bar  *progressbar.ProgressBar
	barW io.Writer
}

type Option func(*Reporter)

// WithBar mirrors progress on a human readable bar written to w.
func WithBar(w io.Writer) Option {
	return func(r *Reporter) {
		r.barW = w
	}
}

func NewReporter(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{out: bufio.NewWriter(out)}
	for _, o := range opts {
		o(r)
	}
	r.newBar()
	return r
}

func (r *Reporter) newBar() {
	if r.barW == nil {
		return
	}
	r.bar = progressbar.NewOptions(
		100,
		progressbar.OptionSetWriter(r.barW),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionClearOnFinish(),
	)
}

// Emit writes a progress line and, when message is not empty, a status line.
// Percentages lower than an earlier one in the same run are raised to it.
func (r *Reporter) Emit(percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	percent = min(max(percent, r.last), 100)
	r.last = percent

	r.writeLine(fmt.Sprintf("%s%d", ProgressPrefix, percent))
	if message != "" {
		r.writeLine(StatusPrefix + oneLine(message))
	}
	r.flush()

	if r.bar != nil {
		if message != "" {
			r.bar.Describe(message)
		}
		if err := r.bar.Set(percent); err != nil {
			xlog.Debug("error while updating progress bar", "error", err, "value", percent)
		}
	}
}

// Info writes an advisory line, e.g. "Image: 512x384".
func (r *Reporter) Info(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(oneLine(fmt.Sprintf(format, args...)))
	r.flush()
}

// Warn writes a non-fatal advisory line prefixed with "WARNING: ".
func (r *Reporter) Warn(format string, args ...any) {
	r.Info("WARNING: "+format, args...)
}

// Success marks the run as complete. It must only be called once the output
// is on disk.
func (r *Reporter) Success() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(SuccessLine)
	r.flush()
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// Last returns the highest percentage emitted in the current run.
func (r *Reporter) Last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reset starts a new run, used between batch jobs.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = 0
	if r.bar != nil {
		_ = r.bar.Finish()
		r.newBar()
	}
}

func (r *Reporter) writeLine(s string) {
	r.out.WriteString(s)
	r.out.WriteByte('\n')
}

func (r *Reporter) flush() {
	if err := r.out.Flush(); err != nil {
		xlog.Debug("progress line dropped", "error", err)
	}
}

// protocol lines are newline delimited, embedded newlines would forge new ones
func oneLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\r", " ")), " ")
}
