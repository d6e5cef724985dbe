package cli

import (
	cliContext "github.com/img-ai-studio/artgen/core/cli/context"
)

var CLI struct {
	cliContext.Context `embed:""`

	Generate GenerateCMD `cmd:"" help:"Turn a photo into an artwork, this is the default command if no other command is specified" default:"withargs"`
	Batch    BatchCMD    `cmd:"" help:"Run the generation jobs listed in a YAML file, keeping models loaded between jobs"`
	Status   StatusCMD   `cmd:"" help:"Print a JSON report of the host, the inference runtime and the installed models"`
}
