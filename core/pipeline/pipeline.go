// Package pipeline turns one photo into one artwork. A run is strictly
// linear and reports its progress through a progress.Reporter:
//
//	validate → probe runtime → select backend → resolve style → load model
//	→ preprocess → generate → save
//
// Any failure ends the run with an *Error; there are no retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/img-ai-studio/artgen/core/backend"
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/core/schema"
	"github.com/img-ai-studio/artgen/core/services"
	"github.com/img-ai-studio/artgen/pkg/images"
	"github.com/img-ai-studio/artgen/pkg/model"
	"github.com/img-ai-studio/artgen/pkg/progress"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion/sdcli"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion/sdlib"
	"github.com/img-ai-studio/artgen/pkg/system"
	"github.com/img-ai-studio/artgen/pkg/utils"
	"github.com/img-ai-studio/artgen/pkg/xsysinfo"
	"github.com/mudler/xlog"
)

const installerHint = "run the installer to set up the AI libraries"

type Pipeline struct {
	appConfig *config.ApplicationConfig
	styles    *config.StyleRegistry
	loader    *model.ModelLoader
	reporter  *progress.Reporter
	metrics   *services.RunMetrics
	engines   []stablediffusion.Engine

	systemState func() *system.SystemState

	mu     sync.Mutex
	engine stablediffusion.Engine
}

type Option func(*Pipeline)

func WithEngines(engines ...stablediffusion.Engine) Option {
	return func(p *Pipeline) {
		p.engines = engines
	}
}

// WithSystemState skips host probing.
func WithSystemState(state *system.SystemState) Option {
	return func(p *Pipeline) {
		p.systemState = func() *system.SystemState { return state }
	}
}

func WithMetrics(m *services.RunMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// DefaultEngines lists the inference engines in order of preference.
func DefaultEngines(appConfig *config.ApplicationConfig) []stablediffusion.Engine {
	return []stablediffusion.Engine{
		sdlib.New(),
		sdcli.New(appConfig.SDBinary),
	}
}

func New(appConfig *config.ApplicationConfig, styles *config.StyleRegistry, loader *model.ModelLoader, reporter *progress.Reporter, opts ...Option) *Pipeline {
	p := &Pipeline{
		appConfig:   appConfig,
		styles:      styles,
		loader:      loader,
		reporter:    reporter,
		engines:     DefaultEngines(appConfig),
		systemState: sync.OnceValue(func() *system.SystemState { return system.GetSystemState() }),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one generation. On success the output file is complete on
// disk and SUCCESS has been reported.
func (p *Pipeline) Run(ctx context.Context, req *schema.GenerationRequest) (artifact *schema.GeneratedArtifact, err error) {
	start := time.Now()
	req.SetDefaults()

	style := req.Style
	kind := backend.KindCPU
	defer func() {
		if p.metrics == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		p.metrics.ObserveRun(style, string(kind), outcome, time.Since(start))
	}()

	p.reporter.Reset()
	if err := p.checkpoint(ctx, 5, "Initializing..."); err != nil {
		return nil, err
	}
	if err := p.validate(req); err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, 10, "Loading AI libraries..."); err != nil {
		return nil, err
	}
	engine, err := p.selectEngine()
	if err != nil {
		return nil, newError(DependencyError, err, "inference runtime not available (%s)", installerHint)
	}

	if err := p.checkpoint(ctx, 15, "Setting up GPU..."); err != nil {
		return nil, err
	}
	profile := backend.Detect(p.systemState(), p.appConfig.Threads)
	kind = profile.Kind
	if profile.Kind == backend.KindCPU {
		p.reporter.Warn("No GPU detected, running on CPU (this will be slow)")
	} else {
		p.reporter.Info("GPU: %s", profile.Device)
	}
	p.reporter.Info("Backend: %s", profile)

	if err := p.checkpoint(ctx, 20, "Loading AI model..."); err != nil {
		return nil, err
	}
	if req.Style != "" && !p.styles.Has(profile.Tier.Name, req.Style) {
		if suggestion := p.styles.Suggest(profile.Tier.Name, req.Style); suggestion != "" {
			p.reporter.Warn("Unknown style %q (did you mean %q?), using %s", req.Style, suggestion, config.DefaultStyle)
		} else {
			p.reporter.Warn("Unknown style %q, using %s", req.Style, config.DefaultStyle)
		}
	}
	styleConfig := p.styles.Resolve(profile.Tier.Name, req.Style)
	style = styleConfig.Name
	params := backend.InferenceParameters(styleConfig, req, profile.Tier)
	p.reporter.Info("Style: %s", styleConfig.Name)
	p.reporter.Info("Strength: %.2f", params.Strength)
	p.reporter.Info("Guidance: %.1f", params.Guidance)

	if err := p.checkpoint(ctx, 25, "Loading: "+styleConfig.Model); err != nil {
		return nil, err
	}
	m, err := p.loader.Load(
		model.WithEngine(engine),
		model.WithModel(styleConfig.Model),
		model.WithThreads(profile.Threads),
		model.WithFP16(profile.FP16()),
		model.WithOptimizations(profile.Optimizations...),
	)
	if err != nil {
		return nil, newError(ModelLoadError, err, "cannot load model %s", styleConfig.Model)
	}
	defer p.release(styleConfig.Model)

	if err := p.checkpoint(ctx, 50, "Model ready"); err != nil {
		return nil, err
	}
	if rss, err := xsysinfo.ProcessRSS(); err == nil {
		xlog.Debug("Process memory after model load", "rss", rss)
	}

	scratch, err := p.scratchDir()
	if err != nil {
		return nil, newError(GenerationError, err, "cannot create scratch directory")
	}
	defer os.RemoveAll(scratch)

	if err := p.checkpoint(ctx, 55, "Processing image..."); err != nil {
		return nil, err
	}
	prepared, err := images.Prepare(req.InputPath, profile.Tier.MaxResolution)
	if err != nil {
		return nil, newError(InputError, err, "cannot process input image")
	}
	p.reporter.Info("Image: %dx%d", prepared.Width, prepared.Height)

	src := filepath.Join(scratch, "input.png")
	dst := filepath.Join(scratch, "output.png")
	if err := images.SavePNG(prepared.Image, src); err != nil {
		return nil, newError(GenerationError, err, "cannot write scratch image")
	}

	if err := p.checkpoint(ctx, 60, "Generating artwork..."); err != nil {
		return nil, err
	}
	err = m.GenerateImage(ctx, &stablediffusion.GenerateImageRequest{
		PositivePrompt: params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Src:            src,
		Dst:            dst,
		Width:          prepared.Width,
		Height:         prepared.Height,
		Step:           params.Steps,
		Seed:           params.Seed,
		CFGScale:       float32(params.Guidance),
		Strength:       float32(params.Strength),
		Sampler:        params.Sampler,
		Scheduler:      params.Scheduler,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, aborted(ctx)
		}
		return nil, newError(GenerationError, err, "generation failed")
	}
	result, err := images.Load(dst)
	if err != nil {
		return nil, newError(GenerationError, err, "generation produced no usable image")
	}

	if err := p.checkpoint(ctx, 90, "Saving..."); err != nil {
		return nil, err
	}
	if err := images.SavePNG(result, req.OutputPath); err != nil {
		return nil, newError(OutputError, err, "cannot save output")
	}
	bounds := result.Bounds()
	artifact = &schema.GeneratedArtifact{
		Image:  result,
		Path:   req.OutputPath,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if req.Metadata {
		meta := schema.RunMetadata{
			ID:         filepath.Base(scratch),
			Input:      req.InputPath,
			Output:     req.OutputPath,
			Style:      styleConfig.Name,
			Model:      styleConfig.Model,
			Backend:    string(profile.Kind),
			Engine:     engine.Name(),
			Width:      artifact.Width,
			Height:     artifact.Height,
			Parameters: params,
			Duration:   time.Since(start).Seconds(),
			CreatedAt:  time.Now().UTC(),
		}
		if err := utils.SaveJSON(MetadataPath(req.OutputPath), meta); err != nil {
			return nil, newError(OutputError, err, "cannot save metadata")
		}
	}
	p.reporter.Info("Saved: %s", req.OutputPath)

	p.reporter.Emit(100, "Done!")
	p.reporter.Success()

	xlog.Info("Artwork generated", "output", req.OutputPath, "style", styleConfig.Name, "duration", time.Since(start))
	return artifact, nil
}

// checkpoint reports progress unless the run has been cancelled. The output
// is only written after the last one, so an aborted run leaves no partial
// artwork behind.
func (p *Pipeline) checkpoint(ctx context.Context, percent int, message string) error {
	if ctx.Err() != nil {
		return aborted(ctx)
	}
	p.reporter.Emit(percent, message)
	return nil
}

func aborted(ctx context.Context) *Error {
	return newError(Aborted, context.Cause(ctx), "run aborted")
}

// MetadataPath is where the metadata sidecar of output is written.
func MetadataPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".json"
}

// validate runs before anything expensive so bad input fails fast.
func (p *Pipeline) validate(req *schema.GenerationRequest) error {
	if err := req.Validate(); err != nil {
		return &Error{Kind: InputError, Err: err}
	}

	if _, _, err := images.Validate(req.InputPath); err != nil {
		switch {
		case errors.Is(err, images.ErrNotFound):
			return newError(InputError, nil, "Input file not found: %s", req.InputPath)
		case errors.Is(err, images.ErrInvalidImage):
			return newError(InputError, nil, "Input file is not a supported image: %s", req.InputPath)
		}
		return newError(InputError, err, "cannot read input %s", req.InputPath)
	}
	return nil
}

// selectEngine probes the engines once and reuses the result.
func (p *Pipeline) selectEngine() (stablediffusion.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine != nil {
		return p.engine, nil
	}

	engine, err := stablediffusion.Select(p.appConfig.Engine, p.engines...)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	return engine, nil
}

func (p *Pipeline) release(modelID string) {
	if p.loader.KeepLoaded() {
		return
	}
	if err := p.loader.ShutdownModel(modelID); err != nil {
		xlog.Warn("error releasing model", "model", modelID, "error", err)
	}
}

func (p *Pipeline) scratchDir() (string, error) {
	dir := filepath.Join(p.appConfig.ScratchPath, "artgen-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%s: %w", dir, err)
	}
	return dir, nil
}
