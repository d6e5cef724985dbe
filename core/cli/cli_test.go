package cli_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	. "github.com/img-ai-studio/artgen/core/cli"
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	"github.com/img-ai-studio/artgen/pkg/system"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeEngine struct {
	name     string
	probeErr error
}

func (e *fakeEngine) Name() string                         { return e.name }
func (e *fakeEngine) Probe() error                         { return e.probeErr }
func (e *fakeEngine) NewBackend() stablediffusion.Backend { return nil }

var _ = Describe("generate", func() {
	parse := func(args ...string) *GenerateCMD {
		var cmd GenerateCMD
		parser, err := kong.New(&cmd)
		Expect(err).ToNot(HaveOccurred())
		_, err = parser.Parse(args)
		Expect(err).ToNot(HaveOccurred())
		return &cmd
	}

	It("leaves unset overrides nil", func() {
		req := parse("-i", "photo.jpg", "-o", "out/art.png").Request()
		Expect(req.Style).To(Equal("anime"))
		Expect(req.Steps).To(BeNil())
		Expect(req.Strength).To(BeNil())
		Expect(req.Guidance).To(BeNil())
		Expect(req.Seed).To(BeNil())
		Expect(req.Metadata).To(BeFalse())
	})

	It("records explicit overrides, even when equal to a default", func() {
		req := parse("-i", "photo.jpg", "-o", "art.png", "--style", "comic", "--strength", "0.35",
			"--guidance", "7.5", "--seed", "42", "--prompt", "a dog", "--steps", "20", "--metadata").Request()
		Expect(req.Style).To(Equal("comic"))
		Expect(req.Strength).To(HaveValue(Equal(0.35)))
		Expect(req.Guidance).To(HaveValue(Equal(7.5)))
		Expect(req.Seed).To(HaveValue(Equal(int64(42))))
		Expect(req.Prompt).To(Equal("a dog"))
		Expect(req.Steps).To(HaveValue(Equal(20)))
		Expect(req.Metadata).To(BeTrue())
	})
})

var _ = Describe("ReadBatch", func() {
	write := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "jobs.yaml")
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	It("reads the job list", func() {
		batch, err := ReadBatch(write("jobs:\n- input: a.jpg\n  output: a.png\n- input: b.jpg\n  output: b.png\n  style: ghibli\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(batch.Jobs).To(HaveLen(2))
		Expect(batch.Jobs[1].Style).To(Equal("ghibli"))
	})

	It("rejects empty job lists", func() {
		_, err := ReadBatch(write("jobs: []\n"))
		Expect(err).To(MatchError(ContainSubstring("no jobs")))
	})

	It("rejects malformed files", func() {
		_, err := ReadBatch(write("jobs: {input: [\n"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("BuildStatus", func() {
	var (
		appConfig *config.ApplicationConfig
		state     *system.SystemState
	)

	BeforeEach(func() {
		GinkgoT().Setenv("ARTGEN_FORCE_BACKEND", "")
		GinkgoT().Setenv("ARTGEN_FORCE_BACKEND_RUN_FILE", filepath.Join(GinkgoT().TempDir(), "backend"))
		appConfig = config.NewApplicationConfig(config.WithModelPath(GinkgoT().TempDir()))
		state = &system.SystemState{GOOS: "linux", GOARCH: "amd64", Cores: 4}
	})

	install := func(modelID string) {
		p := filepath.Join(appConfig.ModelPath, modelID, "model.safetensors")
		Expect(os.MkdirAll(filepath.Dir(p), 0o755)).To(Succeed())
		Expect(os.WriteFile(p, []byte("weights"), 0o644)).To(Succeed())
	}

	It("is not ready without models", func() {
		report := BuildStatus(appConfig, config.NewStyleRegistry(), state, &fakeEngine{name: "library"})
		Expect(report.Ready).To(BeFalse())
		Expect(report.Backend.Tier.Name).To(Equal(config.TierBase))
		Expect(report.Styles).To(HaveLen(4))
		for _, s := range report.Styles {
			Expect(s.Installed).To(BeFalse())
		}
		Expect(report.Disk).ToNot(BeNil())
	})

	It("is ready with an engine and every model", func() {
		for _, m := range []string{"Ojimi/anime-kawai-diffusion", "nitrosocke/mo-di-diffusion", "nitrosocke/Ghibli-Diffusion", "ogkalu/Comic-Diffusion"} {
			install(m)
		}
		report := BuildStatus(appConfig, config.NewStyleRegistry(), state,
			&fakeEngine{name: "library", probeErr: errors.New("no library")},
			&fakeEngine{name: "cli"},
		)
		Expect(report.Ready).To(BeTrue())
		Expect(report.Engines).To(Equal([]EngineStatus{
			{Name: "library", Available: false, Error: "no library"},
			{Name: "cli", Available: true},
		}))
		Expect(report.Styles[0].File).To(HaveSuffix("model.safetensors"))
	})

	It("only reports the configured engine", func() {
		appConfig.Engine = "cli"
		report := BuildStatus(appConfig, config.NewStyleRegistry(), state, &fakeEngine{name: "library"}, &fakeEngine{name: "cli", probeErr: errors.New("sd not found")})
		Expect(report.Engines).To(HaveLen(1))
		Expect(report.Engines[0].Available).To(BeFalse())
		Expect(report.Ready).To(BeFalse())
	})
})
