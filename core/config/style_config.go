package config

import (
	"strings"
)

// Backend tiers, each with its own style table.
const (
	TierHires = "hires"
	TierBase  = "base"

	DefaultStyle = "anime"
)

type StyleConfig struct {
	Name           string  `yaml:"name,omitempty" json:"name"`
	Model          string  `yaml:"model,omitempty" json:"model"`
	PromptPrefix   string  `yaml:"prompt_prefix,omitempty" json:"prompt_prefix"`
	PromptSuffix   string  `yaml:"prompt_suffix,omitempty" json:"prompt_suffix,omitempty"`
	NegativePrompt string  `yaml:"negative_prompt,omitempty" json:"negative_prompt"`
	Guidance       float64 `yaml:"guidance,omitempty" json:"guidance"`
	Strength       float64 `yaml:"strength,omitempty" json:"strength"`
}

// Prompt joins the style prompt fragments around the user supplied text,
// skipping empty parts.
func (s StyleConfig) Prompt(extra string) string {
	parts := []string{}
	for _, p := range []string{s.PromptPrefix, extra, s.PromptSuffix} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

const (
	negativeAnime   = "deformed, distorted, disfigured, bad anatomy, wrong anatomy, ugly, disgusting, blurry, noisy"
	negativeDefault = "deformed, distorted, disfigured, bad anatomy, ugly, blurry, noisy"
)

func builtinStyles() map[string]map[string]StyleConfig {
	return map[string]map[string]StyleConfig{
		TierBase: {
			"anime": {
				Model:          "Ojimi/anime-kawai-diffusion",
				PromptPrefix:   "anime style",
				NegativePrompt: negativeAnime,
				Guidance:       5.0,
				Strength:       0.35,
			},
			"cartoon": {
				Model:          "nitrosocke/mo-di-diffusion",
				PromptPrefix:   "mo-di style",
				NegativePrompt: negativeDefault,
				Guidance:       5.0,
				Strength:       0.35,
			},
			"ghibli": {
				Model:          "nitrosocke/Ghibli-Diffusion",
				PromptPrefix:   "ghibli style",
				NegativePrompt: negativeDefault,
				Guidance:       5.0,
				Strength:       0.35,
			},
			"comic": {
				Model:          "ogkalu/Comic-Diffusion",
				PromptPrefix:   "comic style",
				NegativePrompt: negativeDefault,
				Guidance:       5.0,
				Strength:       0.35,
			},
		},
		TierHires: {
			"anime": {
				Model:          "Ojimi/anime-kawai-diffusion",
				PromptPrefix:   "anime style, anime artwork, vibrant colors, detailed anime illustration",
				PromptSuffix:   "high quality anime art",
				NegativePrompt: negativeAnime,
				Guidance:       7.0,
				Strength:       0.45,
			},
			"cartoon": {
				Model:          "nitrosocke/mo-di-diffusion",
				PromptPrefix:   "mo-di style, cartoon style, disney pixar style, 3d rendered",
				PromptSuffix:   "colorful, smooth shading, cartoon character",
				NegativePrompt: negativeDefault,
				Guidance:       7.0,
				Strength:       0.45,
			},
			"ghibli": {
				Model:          "nitrosocke/Ghibli-Diffusion",
				PromptPrefix:   "ghibli style, studio ghibli style, hayao miyazaki style",
				PromptSuffix:   "soft colors, detailed background, whimsical",
				NegativePrompt: negativeDefault,
				Guidance:       7.0,
				Strength:       0.45,
			},
			"comic": {
				Model:          "ogkalu/Comic-Diffusion",
				PromptPrefix:   "comic style, comic book style, bold lines, halftone dots",
				PromptSuffix:   "dynamic, superhero comic art",
				NegativePrompt: negativeDefault,
				Guidance:       7.0,
				Strength:       0.45,
			},
		},
	}
}
