// Package stablediffusion defines the contract between the pipeline and an
// img2img diffusion runtime. The runtime is a black box: it loads a model
// file once and turns a source PNG into a destination PNG.
package stablediffusion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Optimization flags negotiated by the backend selector.
const (
	FlashAttention = "flash-attention"
	CPUOffload     = "cpu-offload"
	VAETiling      = "vae-tiling"
)

var ErrUnavailable = errors.New("inference runtime not available")

type ModelOptions struct {
	ModelFile     string
	Threads       int
	FP16          bool
	Optimizations []string
}

func (o *ModelOptions) Has(optimization string) bool {
	for _, opt := range o.Optimizations {
		if opt == optimization {
			return true
		}
	}
	return false
}

// Options renders the model options as the "key:value" list the native
// runtime accepts.
func (o *ModelOptions) Options() string {
	opts := make([]string, 0, len(o.Optimizations)+1)
	for _, opt := range o.Optimizations {
		opts = append(opts, opt+":true")
	}
	sort.Strings(opts)
	if o.FP16 {
		opts = append(opts, "type:f16")
	}
	return strings.Join(opts, ",")
}

type GenerateImageRequest struct {
	PositivePrompt string
	NegativePrompt string
	// Src is the preprocessed source image, Dst where the result is written.
	Src       string
	Dst       string
	Width     int
	Height    int
	Step      int
	Seed      int64
	CFGScale  float32
	Strength  float32
	Sampler   string
	Scheduler string
}

func (r *GenerateImageRequest) Validate() error {
	switch {
	case r.Src == "" || r.Dst == "":
		return fmt.Errorf("source and destination are required")
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("invalid size %dx%d", r.Width, r.Height)
	case r.Step <= 0:
		return fmt.Errorf("invalid number of steps %d", r.Step)
	case !(r.Strength > 0 && r.Strength <= 1):
		return fmt.Errorf("strength %.2f out of range", r.Strength)
	case !(r.CFGScale >= 0) || math.IsInf(float64(r.CFGScale), 1):
		return fmt.Errorf("cfg scale %.2f out of range", r.CFGScale)
	}
	return nil
}

// Backend is one loaded model. Implementations are not safe for concurrent
// use, callers serialize GenerateImage.
type Backend interface {
	Load(opts *ModelOptions) error
	GenerateImage(ctx context.Context, req *GenerateImageRequest) error
	Free() error
}

type Engine interface {
	Name() string
	// Probe reports whether the runtime can be reached on this host, without
	// loading any model.
	Probe() error
	NewBackend() Backend
}
