package cli

import (
	cliContext "github.com/img-ai-studio/artgen/core/cli/context"
	"github.com/img-ai-studio/artgen/core/schema"
)

type GenerateCMD struct {
	Input    string   `short:"i" required:"" type:"path" help:"Photo to transform (PNG, JPEG, GIF, BMP, TIFF or WebP)"`
	Output   string   `short:"o" required:"" type:"path" help:"Where to write the PNG artwork, parent directories are created"`
	Style    string   `short:"s" default:"anime" help:"Style to apply: anime, cartoon, ghibli, comic or one from the styles file. Unknown styles use anime"`
	Strength *float64 `help:"How much the photo is transformed, in (0, 1]. Defaults to the style strength"`
	Guidance *float64 `help:"How closely the prompt is followed. Defaults to the style guidance"`
	Prompt   string   `short:"p" help:"Extra prompt text appended to the style prompt"`
	Steps    *int     `help:"Number of inference steps, defaults to 30"`
	Seed     *int64   `help:"Seed for reproducible results, defaults to 42"`
	Metadata bool     `help:"Write a JSON sidecar with the run parameters next to the output"`
}

func (g *GenerateCMD) Request() *schema.GenerationRequest {
	return &schema.GenerationRequest{
		InputPath:  g.Input,
		OutputPath: g.Output,
		Style:      g.Style,
		Strength:   g.Strength,
		Guidance:   g.Guidance,
		Prompt:     g.Prompt,
		Steps:      g.Steps,
		Seed:       g.Seed,
		Metadata:   g.Metadata,
	}
}

func (g *GenerateCMD) Run(ctx *cliContext.Context) error {
	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	_, err = app.pipeline.Run(app.config.Context, g.Request())
	return err
}
