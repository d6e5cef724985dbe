package model

import (
	"fmt"

	"github.com/mudler/xlog"
)

// Load resolves the model id in opts to a weight file and acquires it on the
// configured engine, reusing a cached model when there is one.
func (ml *ModelLoader) Load(opts ...Option) (*Model, error) {
	o := NewOptions(opts...)
	if o.engine == nil {
		return nil, fmt.Errorf("no inference engine configured")
	}

	if m := ml.CheckIsLoaded(o.modelID); m != nil {
		return m, nil
	}

	modelFile, err := ml.ResolveModelFile(o.modelID)
	if err != nil {
		return nil, err
	}

	return ml.LoadModel(o.modelID, modelFile, ml.engineLoader(o))
}

func (ml *ModelLoader) engineLoader(o *Options) func(string, string) (*Model, error) {
	return func(modelID, modelFile string) (*Model, error) {
		xlog.Info("Loading model", "model", modelID, "engine", o.engine.Name(), "fp16", o.fp16, "optimizations", o.optimizations)

		backend := o.engine.NewBackend()
		if err := backend.Load(o.modelOptions(modelFile)); err != nil {
			if ferr := backend.Free(); ferr != nil {
				xlog.Debug("error freeing backend after failed load", "error", ferr)
			}
			return nil, fmt.Errorf("%s: %w", o.engine.Name(), err)
		}

		m := NewModel(modelID, modelFile, backend)
		m.Engine = o.engine.Name()
		return m, nil
	}
}
