package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	DefaultSteps = 30
	DefaultSeed  = int64(42)
)

var ErrInvalidRequest = errors.New("invalid request")

// GenerationRequest is one photo to artwork conversion. Nil pointers mean
// "use the style default"; a set pointer is an override even when it equals
// the default.
type GenerationRequest struct {
	InputPath  string   `json:"input" yaml:"input"`
	OutputPath string   `json:"output" yaml:"output"`
	Style      string   `json:"style,omitempty" yaml:"style,omitempty"`
	Strength   *float64 `json:"strength,omitempty" yaml:"strength,omitempty"`
	Guidance   *float64 `json:"guidance,omitempty" yaml:"guidance,omitempty"`
	Prompt     string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Steps      *int     `json:"steps,omitempty" yaml:"steps,omitempty"`
	Seed       *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Metadata   bool     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SetDefaults fills the fields that have a fixed default.
func (r *GenerationRequest) SetDefaults() {
	if r.Steps == nil {
		steps := DefaultSteps
		r.Steps = &steps
	}
	r.Style = strings.TrimSpace(r.Style)
	r.Prompt = strings.TrimSpace(r.Prompt)
}

func (r *GenerationRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.InputPath) == "":
		return fmt.Errorf("%w: input path is required", ErrInvalidRequest)
	case strings.TrimSpace(r.OutputPath) == "":
		return fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	case r.Steps != nil && *r.Steps <= 0:
		return fmt.Errorf("%w: steps must be a positive integer, got %d", ErrInvalidRequest, *r.Steps)
	// negated so that NaN, which fails every comparison, is rejected too
	case r.Strength != nil && !(*r.Strength > 0 && *r.Strength <= 1):
		return fmt.Errorf("%w: strength must be in (0, 1], got %g", ErrInvalidRequest, *r.Strength)
	case r.Guidance != nil && (!(*r.Guidance >= 0) || math.IsInf(*r.Guidance, 1)):
		return fmt.Errorf("%w: guidance must be a finite non-negative number, got %g", ErrInvalidRequest, *r.Guidance)
	}
	return nil
}

// Batch is the YAML document accepted by "artgen batch".
type Batch struct {
	Jobs []GenerationRequest `yaml:"jobs"`
}
