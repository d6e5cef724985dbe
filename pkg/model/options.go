package model

import (
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
)

type Options struct {
	engine        stablediffusion.Engine
	modelID       string
	threads       int
	fp16          bool
	optimizations []string
}

type Option func(*Options)

func WithEngine(engine stablediffusion.Engine) Option {
	return func(o *Options) {
		o.engine = engine
	}
}

func WithModel(modelID string) Option {
	return func(o *Options) {
		o.modelID = modelID
	}
}

func WithThreads(threads int) Option {
	return func(o *Options) {
		o.threads = threads
	}
}

func WithFP16(fp16 bool) Option {
	return func(o *Options) {
		o.fp16 = fp16
	}
}

func WithOptimizations(optimizations ...string) Option {
	return func(o *Options) {
		o.optimizations = append(o.optimizations, optimizations...)
	}
}

func NewOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Options) modelOptions(modelFile string) *stablediffusion.ModelOptions {
	return &stablediffusion.ModelOptions{
		ModelFile:     modelFile,
		Threads:       o.threads,
		FP16:          o.fp16,
		Optimizations: o.optimizations,
	}
}
