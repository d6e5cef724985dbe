package model

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/img-ai-studio/artgen/pkg/utils"
	"github.com/mudler/xlog"
)

// ModelLoader caches loaded models by id and owns their release.
type ModelLoader struct {
	ModelPath string
	mu        sync.Mutex
	models    map[string]*Model

	singleActiveBackend bool
	keepLoaded          bool
}

type LoaderOption func(*ModelLoader)

// WithSingleActiveBackend makes every load evict the other cached models.
func WithSingleActiveBackend(enabled bool) LoaderOption {
	return func(ml *ModelLoader) {
		ml.singleActiveBackend = enabled
	}
}

// WithKeepLoaded keeps models cached across runs until StopAll.
func WithKeepLoaded(enabled bool) LoaderOption {
	return func(ml *ModelLoader) {
		ml.keepLoaded = enabled
	}
}

func NewModelLoader(modelPath string, opts ...LoaderOption) *ModelLoader {
	nml := &ModelLoader{
		ModelPath: modelPath,
		models:    make(map[string]*Model),
	}
	for _, o := range opts {
		o(nml)
	}

	return nml
}

func (ml *ModelLoader) KeepLoaded() bool {
	return ml.keepLoaded
}

func (ml *ModelLoader) ExistsInModelPath(s string) bool {
	return utils.ExistsInPath(ml.ModelPath, s)
}

// ModelFileExtensions are the weight formats the engines can read.
var ModelFileExtensions = []string{
	".safetensors",
	".ckpt",
	".gguf",
	".bin",
}

var knownFilesToSkip = []string{
	"MODEL_CARD",
	"README",
	"README.md",
}

func isModelFile(name string) bool {
	for _, skip := range knownFilesToSkip {
		if strings.EqualFold(name, skip) {
			return false
		}
	}
	return slices.Contains(ModelFileExtensions, strings.ToLower(filepath.Ext(name)))
}

// ListFilesInModelPath lists the weight files found directly in dir, a path
// relative to the models path, sorted by name.
func (ml *ModelLoader) ListFilesInModelPath(dir string) ([]string, error) {
	root := ml.ModelPath
	if dir != "" {
		if err := utils.VerifyPath(dir, ml.ModelPath); err != nil {
			return nil, err
		}
		root = filepath.Join(ml.ModelPath, dir)
	}

	files, err := os.ReadDir(root)
	if err != nil {
		return []string{}, err
	}

	models := []string{}
	for _, file := range files {
		if file.IsDir() || !isModelFile(file.Name()) {
			continue
		}
		models = append(models, file.Name())
	}
	sort.Strings(models)

	return models, nil
}

// ResolveModelFile maps a model id such as "nitrosocke/Ghibli-Diffusion" to
// a weight file under the models path. The id may name a file, a file
// without its extension, or a directory holding the weights.
func (ml *ModelLoader) ResolveModelFile(modelID string) (string, error) {
	if modelID == "" {
		return "", fmt.Errorf("empty model id")
	}
	if err := utils.VerifyPath(modelID, ml.ModelPath); err != nil {
		return "", fmt.Errorf("model %s: %w", modelID, err)
	}

	candidate := filepath.Join(ml.ModelPath, modelID)
	info, err := os.Stat(candidate)
	switch {
	case err == nil && !info.IsDir():
		return candidate, nil
	case err == nil && info.IsDir():
		files, err := ml.ListFilesInModelPath(modelID)
		if err != nil {
			return "", err
		}
		if len(files) == 0 {
			return "", fmt.Errorf("no weights (%s) found in %s", strings.Join(ModelFileExtensions, ", "), candidate)
		}
		return filepath.Join(candidate, files[0]), nil
	}

	for _, ext := range ModelFileExtensions {
		if _, err := os.Stat(candidate + ext); err == nil {
			return candidate + ext, nil
		}
	}

	return "", fmt.Errorf("model %s not found in %s", modelID, ml.ModelPath)
}

func (ml *ModelLoader) ListLoadedModels() []*Model {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	models := []*Model{}
	for _, model := range ml.models {
		models = append(models, model)
	}

	return models
}

// LoadModel returns the cached model for modelID, or acquires it with loader.
func (ml *ModelLoader) LoadModel(modelID, modelFile string, loader func(string, string) (*Model, error)) (*Model, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if model, ok := ml.models[modelID]; ok {
		xlog.Debug("Model already loaded in memory", "model", modelID)
		return model, nil
	}

	if ml.singleActiveBackend {
		if err := ml.stopModels(allExcept(modelID)); err != nil {
			xlog.Warn("error stopping other models", "error", err)
		}
	}

	xlog.Debug("Loading model in memory from file", "model", modelID, "file", modelFile)
	model, err := loader(modelID, modelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	if model == nil {
		return nil, fmt.Errorf("loader didn't return a model")
	}

	ml.models[modelID] = model

	return model, nil
}

func (ml *ModelLoader) ShutdownModel(modelID string) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if _, ok := ml.models[modelID]; !ok {
		return fmt.Errorf("model %s not found", modelID)
	}

	return ml.deleteModel(modelID)
}

func (ml *ModelLoader) CheckIsLoaded(s string) *Model {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.models[s]
}
