package model_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/img-ai-studio/artgen/pkg/model"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeBackend struct {
	mu      sync.Mutex
	loadErr error
	loaded  *stablediffusion.ModelOptions
	freed   int
}

func (f *fakeBackend) Load(opts *stablediffusion.ModelOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = opts
	return f.loadErr
}

func (f *fakeBackend) GenerateImage(context.Context, *stablediffusion.GenerateImageRequest) error {
	return nil
}

func (f *fakeBackend) Free() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freed++
	return nil
}

type fakeEngine struct {
	backends []*fakeBackend
	loadErr  error
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Probe() error { return nil }
func (f *fakeEngine) NewBackend() stablediffusion.Backend {
	b := &fakeBackend{loadErr: f.loadErr}
	f.backends = append(f.backends, b)
	return b
}

var _ = Describe("ModelLoader", func() {
	var (
		modelLoader *model.ModelLoader
		modelPath   string
		mockModel   *model.Model
	)

	touch := func(parts ...string) string {
		p := filepath.Join(append([]string{modelPath}, parts...)...)
		Expect(os.MkdirAll(filepath.Dir(p), 0o755)).To(Succeed())
		Expect(os.WriteFile(p, []byte("weights"), 0o644)).To(Succeed())
		return p
	}

	BeforeEach(func() {
		modelPath = GinkgoT().TempDir()
		modelLoader = model.NewModelLoader(modelPath)
	})

	Context("NewModelLoader", func() {
		It("should create a new ModelLoader with an empty model map", func() {
			Expect(modelLoader).ToNot(BeNil())
			Expect(modelLoader.ModelPath).To(Equal(modelPath))
			Expect(modelLoader.ListLoadedModels()).To(BeEmpty())
			Expect(modelLoader.KeepLoaded()).To(BeFalse())
		})
	})

	Context("ExistsInModelPath", func() {
		It("should return true if a file exists in the model path", func() {
			touch("test.safetensors")
			Expect(modelLoader.ExistsInModelPath("test.safetensors")).To(BeTrue())
		})

		It("should return false if a file does not exist in the model path", func() {
			Expect(modelLoader.ExistsInModelPath("nonexistent.model")).To(BeFalse())
		})
	})

	Context("ListFilesInModelPath", func() {
		It("should list only weight files, sorted", func() {
			touch("b.safetensors")
			touch("a.ckpt")
			touch("README.md")
			touch("model_index.json")

			files, err := modelLoader.ListFilesInModelPath("")
			Expect(err).To(BeNil())
			Expect(files).To(Equal([]string{"a.ckpt", "b.safetensors"}))
		})
	})

	Context("ResolveModelFile", func() {
		It("resolves a plain file", func() {
			p := touch("anime.gguf")
			Expect(modelLoader.ResolveModelFile("anime.gguf")).To(Equal(p))
		})

		It("resolves an id without its extension", func() {
			p := touch("comic.safetensors")
			Expect(modelLoader.ResolveModelFile("comic")).To(Equal(p))
		})

		It("resolves a repository directory to its first weight file", func() {
			touch("nitrosocke", "Ghibli-Diffusion", "README.md")
			touch("nitrosocke", "Ghibli-Diffusion", "ghibli-diffusion-v1.ckpt")
			touch("nitrosocke", "Ghibli-Diffusion", "ghibli-diffusion-v1.safetensors")
			Expect(modelLoader.ResolveModelFile("nitrosocke/Ghibli-Diffusion")).To(
				Equal(filepath.Join(modelPath, "nitrosocke", "Ghibli-Diffusion", "ghibli-diffusion-v1.ckpt")))
		})

		It("fails on a directory without weights", func() {
			touch("Ojimi", "anime-kawai-diffusion", "README.md")
			_, err := modelLoader.ResolveModelFile("Ojimi/anime-kawai-diffusion")
			Expect(err).To(MatchError(ContainSubstring("no weights")))
		})

		It("rejects paths escaping the models path", func() {
			_, err := modelLoader.ResolveModelFile("../secret.safetensors")
			Expect(err).To(MatchError(ContainSubstring("outside of trusted root")))
		})

		It("fails on unknown models", func() {
			_, err := modelLoader.ResolveModelFile("ogkalu/Comic-Diffusion")
			Expect(err).To(MatchError(ContainSubstring("not found")))
		})
	})

	Context("LoadModel", func() {
		It("should load a model and keep it in memory", func() {
			mockModel = model.NewModel("foo", "test.model", &fakeBackend{})

			mockLoader := func(modelID, modelFile string) (*model.Model, error) {
				return mockModel, nil
			}

			m, err := modelLoader.LoadModel("foo", "test.model", mockLoader)
			Expect(err).To(BeNil())
			Expect(m).To(Equal(mockModel))
			Expect(modelLoader.CheckIsLoaded("foo")).To(Equal(mockModel))
		})

		It("should return the cached model without loading again", func() {
			calls := 0
			mockLoader := func(modelID, modelFile string) (*model.Model, error) {
				calls++
				return model.NewModel(modelID, modelFile, &fakeBackend{}), nil
			}

			first, err := modelLoader.LoadModel("foo", "test.model", mockLoader)
			Expect(err).ToNot(HaveOccurred())
			second, err := modelLoader.LoadModel("foo", "test.model", mockLoader)
			Expect(err).ToNot(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
			Expect(calls).To(Equal(1))
		})

		It("should return an error if loading the model fails", func() {
			mockLoader := func(modelID, modelFile string) (*model.Model, error) {
				return nil, errors.New("failed to load model")
			}

			m, err := modelLoader.LoadModel("foo", "test.model", mockLoader)
			Expect(err).To(HaveOccurred())
			Expect(m).To(BeNil())
			Expect(modelLoader.CheckIsLoaded("foo")).To(BeNil())
		})
	})

	Context("Load", func() {
		var engine *fakeEngine

		BeforeEach(func() {
			engine = &fakeEngine{}
			touch("anime", "anime.safetensors")
		})

		It("passes the negotiated options to the engine", func() {
			m, err := modelLoader.Load(
				model.WithEngine(engine),
				model.WithModel("anime"),
				model.WithThreads(4),
				model.WithFP16(true),
				model.WithOptimizations(stablediffusion.FlashAttention),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Engine).To(Equal("fake"))
			Expect(m.File).To(Equal(filepath.Join(modelPath, "anime", "anime.safetensors")))
			Expect(engine.backends).To(HaveLen(1))
			Expect(engine.backends[0].loaded).To(Equal(&stablediffusion.ModelOptions{
				ModelFile:     m.File,
				Threads:       4,
				FP16:          true,
				Optimizations: []string{stablediffusion.FlashAttention},
			}))
		})

		It("frees the backend when the engine cannot load", func() {
			engine.loadErr = errors.New("out of memory")
			_, err := modelLoader.Load(model.WithEngine(engine), model.WithModel("anime"))
			Expect(err).To(MatchError(ContainSubstring("out of memory")))
			Expect(engine.backends[0].freed).To(Equal(1))
			Expect(modelLoader.ListLoadedModels()).To(BeEmpty())
		})

		It("requires an engine", func() {
			_, err := modelLoader.Load(model.WithModel("anime"))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("single active backend", func() {
		It("evicts other models on load", func() {
			modelLoader = model.NewModelLoader(modelPath, model.WithSingleActiveBackend(true))
			engine := &fakeEngine{}
			touch("anime.safetensors")
			touch("comic.safetensors")

			_, err := modelLoader.Load(model.WithEngine(engine), model.WithModel("anime"))
			Expect(err).ToNot(HaveOccurred())
			_, err = modelLoader.Load(model.WithEngine(engine), model.WithModel("comic"))
			Expect(err).ToNot(HaveOccurred())

			Expect(engine.backends[0].freed).To(Equal(1))
			Expect(modelLoader.CheckIsLoaded("anime")).To(BeNil())
			Expect(modelLoader.CheckIsLoaded("comic")).ToNot(BeNil())
		})
	})

	Context("ShutdownModel", func() {
		It("should shutdown a loaded model", func() {
			backend := &fakeBackend{}
			mockLoader := func(modelID, modelFile string) (*model.Model, error) {
				return model.NewModel("foo", "test.model", backend), nil
			}

			_, err := modelLoader.LoadModel("foo", "test.model", mockLoader)
			Expect(err).To(BeNil())

			err = modelLoader.ShutdownModel("foo")
			Expect(err).To(BeNil())
			Expect(modelLoader.CheckIsLoaded("foo")).To(BeNil())
			Expect(backend.freed).To(Equal(1))
		})

		It("should fail on unknown models", func() {
			Expect(modelLoader.ShutdownModel("foo")).ToNot(Succeed())
		})
	})

	Context("StopAll", func() {
		It("releases every model", func() {
			modelLoader = model.NewModelLoader(modelPath, model.WithKeepLoaded(true))
			engine := &fakeEngine{}
			touch("anime.safetensors")
			touch("ghibli.safetensors")

			for _, id := range []string{"anime", "ghibli"} {
				_, err := modelLoader.Load(model.WithEngine(engine), model.WithModel(id))
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(modelLoader.ListLoadedModels()).To(HaveLen(2))

			Expect(modelLoader.StopAll()).To(Succeed())
			Expect(modelLoader.ListLoadedModels()).To(BeEmpty())
			for _, b := range engine.backends {
				Expect(b.freed).To(Equal(1))
			}
		})
	})
})
