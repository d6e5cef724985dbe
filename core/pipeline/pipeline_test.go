package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/img-ai-studio/artgen/core/config"
	. "github.com/img-ai-studio/artgen/core/pipeline"
	"github.com/img-ai-studio/artgen/core/schema"
	"github.com/img-ai-studio/artgen/core/services"
	"github.com/img-ai-studio/artgen/pkg/images"
	"github.com/img-ai-studio/artgen/pkg/model"
	"github.com/img-ai-studio/artgen/pkg/progress"
	"github.com/img-ai-studio/artgen/pkg/signals"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	"github.com/img-ai-studio/artgen/pkg/system"
	"github.com/img-ai-studio/artgen/pkg/utils"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeBackend struct {
	engine *fakeEngine
	opts   *stablediffusion.ModelOptions
}

func (b *fakeBackend) Load(opts *stablediffusion.ModelOptions) error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.engine.loadErr != nil {
		return b.engine.loadErr
	}
	b.opts = opts
	b.engine.loaded++
	return nil
}

// GenerateImage inverts the source so the result is distinguishable from it.
func (b *fakeBackend) GenerateImage(ctx context.Context, req *stablediffusion.GenerateImageRequest) error {
	b.engine.mu.Lock()
	b.engine.requests = append(b.engine.requests, *req)
	genErr, skip, started := b.engine.genErr, b.engine.skipOutput, b.engine.started
	b.engine.mu.Unlock()

	if started != nil {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	if genErr != nil {
		return genErr
	}
	if skip {
		return nil
	}

	src, err := images.Load(req.Src)
	if err != nil {
		return err
	}
	out := image.NewRGBA(src.Bounds())
	for y := src.Bounds().Min.Y; y < src.Bounds().Max.Y; y++ {
		for x := src.Bounds().Min.X; x < src.Bounds().Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			out.Set(x, y, color.RGBA{255 - uint8(r>>8), 255 - uint8(g>>8), 255 - uint8(bl>>8), 255})
		}
	}
	return images.SavePNG(out, req.Dst)
}

func (b *fakeBackend) Free() error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	b.engine.freed++
	return nil
}

type fakeEngine struct {
	mu         sync.Mutex
	probeErr   error
	loadErr    error
	genErr     error
	skipOutput bool
	// when set, inference blocks until cancelled and closes it on start
	started    chan struct{}
	loaded     int
	freed      int
	requests   []stablediffusion.GenerateImageRequest
}

func (e *fakeEngine) Name() string                         { return "fake" }
func (e *fakeEngine) Probe() error                         { return e.probeErr }
func (e *fakeEngine) NewBackend() stablediffusion.Backend { return &fakeBackend{engine: e} }

var _ = Describe("Pipeline", func() {
	var (
		dir       string
		input     string
		output    string
		stdout    *bytes.Buffer
		engine    *fakeEngine
		loader    *model.ModelLoader
		appConfig *config.ApplicationConfig
		state     *system.SystemState
	)

	writeImage := func(path string, w, h int) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
			}
		}
		Expect(images.SavePNG(img, path)).To(Succeed())
	}

	lines := func() []string {
		return strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	}

	percentages := func() []int {
		out := []int{}
		for _, l := range lines() {
			if v, ok := strings.CutPrefix(l, progress.ProgressPrefix); ok {
				n, err := strconv.Atoi(v)
				Expect(err).ToNot(HaveOccurred())
				out = append(out, n)
			}
		}
		return out
	}

	newPipeline := func(opts ...Option) *Pipeline {
		opts = append([]Option{WithEngines(engine), WithSystemState(state)}, opts...)
		return New(appConfig, config.NewStyleRegistry(), loader, progress.NewReporter(stdout), opts...)
	}

	BeforeEach(func() {
		GinkgoT().Setenv("ARTGEN_FORCE_BACKEND", "")
		GinkgoT().Setenv("ARTGEN_FORCE_BACKEND_RUN_FILE", filepath.Join(GinkgoT().TempDir(), "backend"))

		dir = GinkgoT().TempDir()
		modelsPath := filepath.Join(dir, "models")
		for _, m := range []string{"Ojimi/anime-kawai-diffusion", "nitrosocke/Ghibli-Diffusion"} {
			p := filepath.Join(modelsPath, m, "model.safetensors")
			Expect(os.MkdirAll(filepath.Dir(p), 0o755)).To(Succeed())
			Expect(os.WriteFile(p, []byte("weights"), 0o644)).To(Succeed())
		}

		input = filepath.Join(dir, "photo.png")
		writeImage(input, 800, 600)
		output = filepath.Join(dir, "out", "nested", "art.png")

		stdout = &bytes.Buffer{}
		engine = &fakeEngine{}
		loader = model.NewModelLoader(modelsPath)
		appConfig = config.NewApplicationConfig(
			config.WithModelPath(modelsPath),
			config.WithScratchPath(filepath.Join(dir, "scratch")),
		)
		state = &system.SystemState{GOOS: "linux", GOARCH: "amd64", Cores: 4}
	})

	scratchEntries := func() []os.DirEntry {
		entries, err := os.ReadDir(appConfig.ScratchPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		Expect(err).ToNot(HaveOccurred())
		return entries
	}

	It("turns a photo into an artwork", func() {
		artifact, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{
			InputPath:  input,
			OutputPath: output,
			Style:      "anime",
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(percentages()).To(Equal([]int{5, 10, 15, 20, 25, 50, 55, 60, 90, 100}))
		Expect(lines()).To(ContainElements(
			"STATUS:Loading: Ojimi/anime-kawai-diffusion",
			"Style: anime",
			"Strength: 0.35",
			"Image: 512x384",
			"Saved: "+output,
		))
		Expect(lines()[len(lines())-1]).To(Equal(progress.SuccessLine))
		Expect(strings.Count(stdout.String(), progress.SuccessLine)).To(Equal(1))

		Expect(artifact.Path).To(Equal(output))
		Expect(artifact.Width).To(Equal(512))
		Expect(artifact.Height).To(Equal(384))

		w, h, err := images.Validate(output)
		Expect(err).ToNot(HaveOccurred())
		Expect([]int{w, h}).To(Equal([]int{512, 384}))

		Expect(engine.requests).To(HaveLen(1))
		req := engine.requests[0]
		Expect(req.PositivePrompt).To(Equal("anime style"))
		Expect(req.NegativePrompt).To(ContainSubstring("wrong anatomy"))
		Expect(req.Strength).To(BeNumerically("~", 0.35, 1e-6))
		Expect(req.CFGScale).To(BeNumerically("~", 5.0, 1e-6))
		Expect(req.Step).To(Equal(30))
		Expect(req.Seed).To(Equal(int64(42)))
		Expect(req.Sampler).To(Equal("euler_a"))
	})

	It("uses the hires tier on specialized accelerators", func() {
		state = &system.SystemState{GPUVendor: system.Nvidia, GPUName: "RTX 4090", VRAM: 24 << 30, GOOS: "linux", GOARCH: "amd64", Cores: 16}
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Style: "ghibli"})
		Expect(err).ToNot(HaveOccurred())

		Expect(lines()).To(ContainElements("GPU: RTX 4090", "Image: 768x576", "Strength: 0.45"))
		req := engine.requests[0]
		Expect(req.Sampler).To(Equal("dpm++2m"))
		Expect(req.Scheduler).To(Equal("karras"))
		Expect(req.PositivePrompt).To(HavePrefix("ghibli style"))
	})

	It("applies request overrides", func() {
		strength, guidance, seed, steps := 0.6, 9.0, int64(1234), 10
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{
			InputPath: input, OutputPath: output, Style: "anime",
			Strength: &strength, Guidance: &guidance, Seed: &seed, Steps: &steps, Prompt: "a red fox",
		})
		Expect(err).ToNot(HaveOccurred())
		req := engine.requests[0]
		Expect(req.Strength).To(BeNumerically("~", 0.6, 1e-6))
		Expect(req.CFGScale).To(BeNumerically("~", 9.0, 1e-6))
		Expect(req.Seed).To(Equal(int64(1234)))
		Expect(req.Step).To(Equal(10))
		Expect(req.PositivePrompt).To(Equal("anime style, a red fox"))
	})

	It("falls back to the default style", func() {
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Style: "oil-painting"})
		Expect(err).ToNot(HaveOccurred())
		Expect(lines()).To(ContainElements("STATUS:Loading: Ojimi/anime-kawai-diffusion", "Style: anime"))
		Expect(stdout.String()).To(ContainSubstring(`WARNING: Unknown style "oil-painting"`))
	})

	It("fails fast on a missing input", func() {
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{
			InputPath:  filepath.Join(dir, "missing.jpg"),
			OutputPath: output,
		})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(err.Error()).To(ContainSubstring("Input file not found"))
		Expect(percentages()).To(Equal([]int{5}))
		Expect(stdout.String()).ToNot(ContainSubstring(progress.SuccessLine))
		Expect(engine.loaded).To(BeZero())
		Expect(output).ToNot(BeAnExistingFile())
	})

	It("rejects undecodable input before loading a model", func() {
		Expect(os.WriteFile(input, []byte("not an image"), 0o644)).To(Succeed())
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(engine.loaded).To(BeZero())
	})

	It("rejects invalid overrides", func() {
		strength := 1.5
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Strength: &strength})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(err).To(MatchError(schema.ErrInvalidRequest))
	})

	It("rejects non-numeric overrides", func() {
		strength := math.NaN()
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Strength: &strength})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(engine.requests).To(BeEmpty())

		guidance := math.Inf(1)
		_, err = newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Guidance: &guidance})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(stdout.String()).ToNot(ContainSubstring(progress.SuccessLine))
	})

	It("rejects an explicit zero step count", func() {
		steps := 0
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Steps: &steps})
		Expect(KindOf(err)).To(Equal(InputError))
		Expect(engine.loaded).To(BeZero())
	})

	It("reports a missing inference runtime", func() {
		engine.probeErr = errors.New("libartgen-sd.so: cannot open shared object file")
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(DependencyError))
		Expect(err.Error()).To(ContainSubstring("installer"))
		Expect(percentages()).To(Equal([]int{5, 10}))
	})

	It("reports models that cannot be loaded", func() {
		engine.loadErr = errors.New("out of memory")
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(ModelLoadError))
		Expect(percentages()).To(Equal([]int{5, 10, 15, 20, 25}))
	})

	It("reports models missing from the models path", func() {
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Style: "comic"})
		Expect(KindOf(err)).To(Equal(ModelLoadError))
		Expect(err.Error()).To(ContainSubstring("ogkalu/Comic-Diffusion"))
	})

	It("releases the model and scratch space when generation fails", func() {
		engine.genErr = errors.New("CUDA error: out of memory")
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(GenerationError))
		Expect(engine.freed).To(Equal(1))
		Expect(loader.ListLoadedModels()).To(BeEmpty())
		Expect(scratchEntries()).To(BeEmpty())
		Expect(output).ToNot(BeAnExistingFile())
		Expect(stdout.String()).ToNot(ContainSubstring(progress.SuccessLine))
	})

	It("fails generation when the engine writes nothing", func() {
		engine.skipOutput = true
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(GenerationError))
	})

	It("releases the model after a successful run", func() {
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(err).ToNot(HaveOccurred())
		Expect(engine.freed).To(Equal(1))
		Expect(loader.ListLoadedModels()).To(BeEmpty())
		Expect(scratchEntries()).To(BeEmpty())
	})

	It("keeps models loaded across runs in keep-loaded mode", func() {
		loader = model.NewModelLoader(appConfig.ModelPath, model.WithKeepLoaded(true))
		p := newPipeline()
		for range 2 {
			_, err := p.Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(engine.loaded).To(Equal(1))
		Expect(engine.freed).To(BeZero())
		Expect(loader.StopAll()).To(Succeed())
		Expect(engine.freed).To(Equal(1))
	})

	It("treats an unusable scratch space as a generation failure", func() {
		scratch := filepath.Join(dir, "scratch-file")
		Expect(os.WriteFile(scratch, []byte("a file"), 0o644)).To(Succeed())
		appConfig = config.NewApplicationConfig(config.WithModelPath(appConfig.ModelPath), config.WithScratchPath(scratch))

		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(GenerationError))
		Expect(ExitCode(err)).To(Equal(5))
		Expect(err.Error()).To(ContainSubstring("scratch"))
		Expect(engine.requests).To(BeEmpty())
		Expect(engine.freed).To(Equal(1))
	})

	It("produces the same artwork for the same request", func() {
		p := newPipeline()
		var outputs [][]byte
		for range 2 {
			_, err := p.Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Style: "anime"})
			Expect(err).ToNot(HaveOccurred())
			data, err := os.ReadFile(output)
			Expect(err).ToNot(HaveOccurred())
			outputs = append(outputs, data)
		}
		Expect(outputs[0]).To(Equal(outputs[1]))

		Expect(engine.requests).To(HaveLen(2))
		first, second := engine.requests[0], engine.requests[1]
		Expect(first.Src).ToNot(Equal(second.Src))
		first.Src, first.Dst, second.Src, second.Dst = "", "", "", ""
		Expect(first).To(Equal(second))
		Expect(first.Seed).To(Equal(schema.DefaultSeed))
	})

	Context("when the run is cancelled", func() {
		It("stops during inference and cleans up", func() {
			ctx, cancel := context.WithCancelCause(context.Background())
			defer cancel(nil)
			engine.started = make(chan struct{})
			go func() {
				<-engine.started
				cancel(&signals.TerminatedError{Signal: syscall.SIGTERM})
			}()

			_, err := newPipeline().Run(ctx, &schema.GenerationRequest{InputPath: input, OutputPath: output})
			Expect(KindOf(err)).To(Equal(Aborted))
			Expect(ExitCode(err)).To(Equal(143))
			Expect(err.Error()).To(HavePrefix("run aborted"))

			Expect(percentages()).To(Equal([]int{5, 10, 15, 20, 25, 50, 55, 60}))
			Expect(stdout.String()).ToNot(ContainSubstring(progress.SuccessLine))
			Expect(output).ToNot(BeAnExistingFile())
			Expect(engine.freed).To(Equal(1))
			Expect(loader.ListLoadedModels()).To(BeEmpty())
			Expect(scratchEntries()).To(BeEmpty())
		})

		It("does not start when already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := newPipeline().Run(ctx, &schema.GenerationRequest{InputPath: input, OutputPath: output})
			Expect(KindOf(err)).To(Equal(Aborted))
			Expect(ExitCode(err)).To(Equal(130))
			Expect(percentages()).To(BeEmpty())
			Expect(engine.loaded).To(BeZero())
		})
	})

	It("reports outputs that cannot be written", func() {
		output = filepath.Join(dir, "blocked", "art.png")
		Expect(os.WriteFile(filepath.Join(dir, "blocked"), []byte("a file"), 0o644)).To(Succeed())

		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(KindOf(err)).To(Equal(OutputError))
		Expect(engine.freed).To(Equal(1))
		Expect(percentages()).To(Equal([]int{5, 10, 15, 20, 25, 50, 55, 60, 90}))
		Expect(stdout.String()).ToNot(ContainSubstring(progress.SuccessLine))
	})

	It("writes the metadata sidecar on request", func() {
		_, err := newPipeline().Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output, Style: "ghibli", Metadata: true})
		Expect(err).ToNot(HaveOccurred())

		var meta schema.RunMetadata
		Expect(MetadataPath(output)).To(Equal(filepath.Join(dir, "out", "nested", "art.json")))
		Expect(utils.LoadJSON(MetadataPath(output), &meta)).To(Succeed())
		Expect(meta.ID).To(HavePrefix("artgen-"))
		Expect(meta.Style).To(Equal("ghibli"))
		Expect(meta.Model).To(Equal("nitrosocke/Ghibli-Diffusion"))
		Expect(meta.Backend).To(Equal("cpu-fallback"))
		Expect(meta.Engine).To(Equal("fake"))
		Expect(meta.Parameters.Seed).To(Equal(int64(42)))
		Expect([]int{meta.Width, meta.Height}).To(Equal([]int{512, 384}))
	})

	It("records run outcomes", func() {
		metrics := services.NewRunMetrics()
		p := newPipeline(WithMetrics(metrics))

		_, err := p.Run(context.Background(), &schema.GenerationRequest{InputPath: input, OutputPath: output})
		Expect(err).ToNot(HaveOccurred())
		_, err = p.Run(context.Background(), &schema.GenerationRequest{InputPath: filepath.Join(dir, "missing.png"), OutputPath: output})
		Expect(err).To(HaveOccurred())

		Expect(testutil.GatherAndCount(metrics.Registry(), "artgen_runs_total")).To(Equal(2))
	})
})
