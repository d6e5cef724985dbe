// Package sdcli runs inference by spawning the stable-diffusion.cpp "sd"
// command line tool once per image.
package sdcli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	process "github.com/mudler/go-processmanager"
	"github.com/mudler/xlog"
)

const (
	Name      = "cli"
	BinaryEnv = "ARTGEN_SD_BINARY"

	defaultBinary = "sd"
	pollInterval  = 250 * time.Millisecond
)

type Engine struct {
	binary string
}

// New returns an engine running binary. An empty binary resolves to
// ARTGEN_SD_BINARY, or "sd" from PATH.
func New(binary string) *Engine {
	if binary == "" {
		binary = os.Getenv(BinaryEnv)
	}
	if binary == "" {
		binary = defaultBinary
	}
	return &Engine{binary: binary}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Probe() error {
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return fmt.Errorf("%w: %w", stablediffusion.ErrUnavailable, err)
	}
	e.binary = path
	return nil
}

func (e *Engine) NewBackend() stablediffusion.Backend {
	return &Backend{binary: e.binary}
}

type Backend struct {
	binary string
	opts   *stablediffusion.ModelOptions
}

// Load only checks the model file, the tool reads it again on every run.
func (b *Backend) Load(opts *stablediffusion.ModelOptions) error {
	if _, err := os.Stat(opts.ModelFile); err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	b.opts = opts
	return nil
}

func (b *Backend) Free() error {
	b.opts = nil
	return nil
}

func (b *Backend) GenerateImage(ctx context.Context, req *stablediffusion.GenerateImageRequest) error {
	if b.opts == nil {
		return fmt.Errorf("model not loaded")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	args := Args(b.opts, req)
	xlog.Debug("Running stable-diffusion", "binary", b.binary, "args", args)

	sdProcess := process.New(
		process.WithTemporaryStateDir(),
		process.WithName(b.binary),
		process.WithArgs(args...),
		process.WithEnvironment(os.Environ()...),
	)
	if err := sdProcess.Run(); err != nil {
		return fmt.Errorf("cannot start %s: %w", b.binary, err)
	}
	defer os.RemoveAll(sdProcess.StateDir())

	xlog.Debug("stable-diffusion state dir", "dir", sdProcess.StateDir(), "pid", sdProcess.PID)

	stopLogs := follow(sdProcess)
	defer stopLogs()

	if err := wait(ctx, sdProcess); err != nil {
		return err
	}

	code, err := exitCode(sdProcess)
	if err != nil {
		return fmt.Errorf("cannot read exit status: %w", err)
	}
	if code != "0" {
		return fmt.Errorf("stable-diffusion exited with code %s", code)
	}

	if _, err := os.Stat(req.Dst); err != nil {
		return fmt.Errorf("stable-diffusion produced no image: %w", err)
	}
	return nil
}

// Args translates a request into sd command line arguments.
func Args(opts *stablediffusion.ModelOptions, req *stablediffusion.GenerateImageRequest) []string {
	args := []string{
		"--mode", "img2img",
		"-m", opts.ModelFile,
		"--init-img", req.Src,
		"-o", req.Dst,
		"-p", req.PositivePrompt,
		"-n", req.NegativePrompt,
		"--cfg-scale", strconv.FormatFloat(float64(req.CFGScale), 'f', -1, 32),
		"--strength", strconv.FormatFloat(float64(req.Strength), 'f', -1, 32),
		"--steps", strconv.Itoa(req.Step),
		"--seed", strconv.FormatInt(req.Seed, 10),
		"-W", strconv.Itoa(req.Width),
		"-H", strconv.Itoa(req.Height),
	}
	if req.Sampler != "" {
		args = append(args, "--sampling-method", req.Sampler)
	}
	if req.Scheduler != "" {
		args = append(args, "--scheduler", req.Scheduler)
	}
	if opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(opts.Threads))
	}
	if opts.FP16 {
		args = append(args, "--type", "f16")
	}
	if opts.Has(stablediffusion.FlashAttention) {
		args = append(args, "--diffusion-fa")
	}
	if opts.Has(stablediffusion.CPUOffload) {
		args = append(args, "--offload-to-cpu")
	}
	if opts.Has(stablediffusion.VAETiling) {
		args = append(args, "--vae-tiling")
	}
	return args
}

func wait(ctx context.Context, p *process.Process) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for p.IsAlive() {
		select {
		case <-ctx.Done():
			if err := p.Stop(); err != nil {
				xlog.Warn("error stopping stable-diffusion", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// the exit code file is written by the process wrapper right after exit
func exitCode(p *process.Process) (string, error) {
	var (
		code string
		err  error
	)
	for range 20 {
		code, err = p.ExitCode()
		if err == nil {
			return strings.TrimSpace(code), nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return "", err
}

func follow(p *process.Process) func() {
	tails := []*tail.Tail{}
	for stream, path := range map[string]string{"stdout": p.StdoutPath(), "stderr": p.StderrPath()} {
		t, err := tail.TailFile(path, tail.Config{Follow: true, MustExist: false, Logger: tail.DiscardingLogger})
		if err != nil {
			xlog.Debug("Could not tail", "stream", stream, "error", err)
			continue
		}
		tails = append(tails, t)
		go func() {
			for line := range t.Lines {
				xlog.Debug("stable-diffusion", "stream", stream, "line", line.Text)
			}
		}()
	}
	return func() {
		for _, t := range tails {
			_ = t.Stop()
			t.Cleanup()
		}
	}
}
