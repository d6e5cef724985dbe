package backend

import (
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/core/schema"
)

// InferenceParameters merges the request overrides over the style defaults.
// An override wins whenever it is set, even when it equals the default.
func InferenceParameters(style config.StyleConfig, req *schema.GenerationRequest, tier Tier) schema.InferenceParameters {
	params := schema.InferenceParameters{
		Prompt:         style.Prompt(req.Prompt),
		NegativePrompt: style.NegativePrompt,
		Strength:       style.Strength,
		Guidance:       style.Guidance,
		Steps:          schema.DefaultSteps,
		Seed:           schema.DefaultSeed,
		Sampler:        tier.Sampler,
		Scheduler:      tier.Scheduler,
	}

	if req.Strength != nil {
		params.Strength = *req.Strength
	}
	if req.Guidance != nil {
		params.Guidance = *req.Guidance
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	if req.Steps != nil {
		params.Steps = *req.Steps
	}
	return params
}
