package cli

import (
	"fmt"
	"os"

	cliContext "github.com/img-ai-studio/artgen/core/cli/context"
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/core/schema"
	"gopkg.in/yaml.v3"
)

type BatchCMD struct {
	JobsFile string `arg:"" type:"path" help:"YAML file with a top level 'jobs' list, each job takes the generate options (input, output, style, strength, guidance, prompt, steps, seed, metadata)"`
}

func ReadBatch(path string) (*schema.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read jobs file: %w", err)
	}
	batch := &schema.Batch{}
	if err := yaml.Unmarshal(data, batch); err != nil {
		return nil, fmt.Errorf("cannot parse jobs file %s: %w", path, err)
	}
	if len(batch.Jobs) == 0 {
		return nil, fmt.Errorf("no jobs in %s", path)
	}
	return batch, nil
}

func (b *BatchCMD) Run(ctx *cliContext.Context) error {
	batch, err := ReadBatch(b.JobsFile)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, config.EnableKeepLoaded)
	if err != nil {
		return err
	}
	defer app.Close()

	for i := range batch.Jobs {
		job := &batch.Jobs[i]
		app.reporter.Info("Job: %d/%d", i+1, len(batch.Jobs))
		if _, err := app.pipeline.Run(app.config.Context, job); err != nil {
			return fmt.Errorf("job %d/%d (%s): %w", i+1, len(batch.Jobs), job.InputPath, err)
		}
	}
	return nil
}
