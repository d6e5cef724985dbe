package config

import (
	"context"
	"os"
)

type ApplicationConfig struct {
	Context         context.Context
	ModelPath       string
	StylesFile      string
	ScratchPath     string
	Engine          string
	SDBinary        string
	Threads         int
	SingleBackend   bool
	KeepLoaded      bool
	MetricsTextfile string
	ProgressBar     bool
}

type AppOption func(*ApplicationConfig)

func NewApplicationConfig(o ...AppOption) *ApplicationConfig {
	opt := &ApplicationConfig{
		Context:     context.Background(),
		ModelPath:   "models",
		ScratchPath: os.TempDir(),
		Engine:      "auto",
	}
	for _, oo := range o {
		oo(opt)
	}
	return opt
}

func WithContext(ctx context.Context) AppOption {
	return func(o *ApplicationConfig) {
		o.Context = ctx
	}
}

func WithModelPath(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.ModelPath = path
	}
}

func WithStylesFile(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.StylesFile = path
	}
}

// WithScratchPath sets where intermediate images are kept during a run.
// Empty values keep the system temporary directory.
func WithScratchPath(path string) AppOption {
	return func(o *ApplicationConfig) {
		if path != "" {
			o.ScratchPath = path
		}
	}
}

func WithEngine(engine string) AppOption {
	return func(o *ApplicationConfig) {
		if engine != "" {
			o.Engine = engine
		}
	}
}

func WithSDBinary(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.SDBinary = path
	}
}

func WithThreads(threads int) AppOption {
	return func(o *ApplicationConfig) {
		if threads > 0 {
			o.Threads = threads
		}
	}
}

var EnableSingleBackend = func(o *ApplicationConfig) {
	o.SingleBackend = true
}

// EnableKeepLoaded keeps models loaded across runs, used by batch jobs.
var EnableKeepLoaded = func(o *ApplicationConfig) {
	o.KeepLoaded = true
}

func WithMetricsTextfile(path string) AppOption {
	return func(o *ApplicationConfig) {
		o.MetricsTextfile = path
	}
}

func WithProgressBar(enabled bool) AppOption {
	return func(o *ApplicationConfig) {
		o.ProgressBar = enabled
	}
}
