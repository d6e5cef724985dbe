package schema

import (
	"image"
	"time"
)

// InferenceParameters are the fully resolved inputs of one diffusion call.
type InferenceParameters struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Strength       float64 `json:"strength"`
	Guidance       float64 `json:"guidance"`
	Steps          int     `json:"steps"`
	Seed           int64   `json:"seed"`
	Sampler        string  `json:"sampler"`
	Scheduler      string  `json:"scheduler"`
}

type GeneratedArtifact struct {
	Image  image.Image `json:"-"`
	Path   string      `json:"path"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

// RunMetadata is written next to the output when requested.
type RunMetadata struct {
	ID         string              `json:"id"`
	Input      string              `json:"input"`
	Output     string              `json:"output"`
	Style      string              `json:"style"`
	Model      string              `json:"model"`
	Backend    string              `json:"backend"`
	Engine     string              `json:"engine"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Parameters InferenceParameters `json:"parameters"`
	Duration   float64             `json:"duration_seconds"`
	CreatedAt  time.Time           `json:"created_at"`
}
