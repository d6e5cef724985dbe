// Package sdlib runs inference in-process through a stable-diffusion.cpp
// shared library opened at runtime.
package sdlib

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	"github.com/mudler/xlog"
)

const (
	Name       = "library"
	LibraryEnv = "ARTGEN_SD_LIBRARY"
)

var (
	CppLoadModel func(modelPath, options string, threads int32, fp16 bool) int32
	CppGenImage  func(prompt, negative, src, dst string, width, height, steps int32, seed int64, cfgScale, strength float32, sampler, scheduler string) int32
	CppFreeModel func() int32
)

type LibFuncs struct {
	FuncPtr any
	Name    string
}

var (
	openOnce sync.Once
	openErr  error
	// the native library keeps a single global context
	nativeMu sync.Mutex
)

// LibraryPath returns the shared library to open, ARTGEN_SD_LIBRARY when set.
func LibraryPath() string {
	if lib := os.Getenv(LibraryEnv); lib != "" {
		return lib
	}
	if runtime.GOOS == "darwin" {
		return "./libartgen-sd.dylib"
	}
	return "./libartgen-sd.so"
}

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Probe() error {
	openOnce.Do(func() {
		openErr = open(LibraryPath())
	})
	if openErr != nil {
		return fmt.Errorf("%w: %w", stablediffusion.ErrUnavailable, openErr)
	}
	return nil
}

func (e *Engine) NewBackend() stablediffusion.Backend {
	return &Backend{}
}

type Backend struct {
	loaded bool
	// set when a cancelled inference is still running in native code
	abandoned atomic.Bool
}

func (b *Backend) Load(opts *stablediffusion.ModelOptions) error {
	nativeMu.Lock()
	defer nativeMu.Unlock()

	xlog.Debug("Loading model in shared library", "model", opts.ModelFile, "options", opts.Options())
	if ret := CppLoadModel(opts.ModelFile, opts.Options(), int32(opts.Threads), opts.FP16); ret != 0 {
		return fmt.Errorf("could not load model %s (code %d)", opts.ModelFile, ret)
	}
	b.loaded = true
	return nil
}

// GenerateImage runs one inference. Native code cannot be interrupted: when
// ctx is cancelled the call returns at once and the inference finishes in the
// background, holding the library until then.
func (b *Backend) GenerateImage(ctx context.Context, req *stablediffusion.GenerateImageRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	nativeMu.Lock()
	if !b.loaded {
		nativeMu.Unlock()
		return fmt.Errorf("model not loaded")
	}

	done := make(chan int32, 1)
	go func() {
		defer nativeMu.Unlock()
		done <- CppGenImage(
			req.PositivePrompt, req.NegativePrompt, req.Src, req.Dst,
			int32(req.Width), int32(req.Height), int32(req.Step), req.Seed,
			req.CFGScale, req.Strength, req.Sampler, req.Scheduler,
		)
	}()

	select {
	case ret := <-done:
		if ret != 0 {
			return fmt.Errorf("inference failed (code %d)", ret)
		}
		return nil
	case <-ctx.Done():
		b.abandoned.Store(true)
		xlog.Warn("Inference cancelled, native call left to finish in the background")
		return ctx.Err()
	}
}

// Free unloads the model. After a cancelled inference it gives up instead of
// waiting for the native call, the process is about to exit anyway.
func (b *Backend) Free() error {
	if b.abandoned.Load() {
		if !nativeMu.TryLock() {
			return fmt.Errorf("cannot free model: a cancelled inference is still running")
		}
		b.abandoned.Store(false)
	} else {
		nativeMu.Lock()
	}
	defer nativeMu.Unlock()

	if !b.loaded {
		return nil
	}
	b.loaded = false
	if ret := CppFreeModel(); ret != 0 {
		return fmt.Errorf("could not free model (code %d)", ret)
	}
	return nil
}
