package cli

import (
	"context"
	"os"

	cliContext "github.com/img-ai-studio/artgen/core/cli/context"
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/core/pipeline"
	"github.com/img-ai-studio/artgen/core/services"
	"github.com/img-ai-studio/artgen/pkg/model"
	"github.com/img-ai-studio/artgen/pkg/progress"
	"github.com/img-ai-studio/artgen/pkg/signals"
	"github.com/mudler/xlog"
)

// application wires the components shared by the commands.
type application struct {
	config   *config.ApplicationConfig
	styles   *config.StyleRegistry
	loader   *model.ModelLoader
	reporter *progress.Reporter
	metrics  *services.RunMetrics
	pipeline *pipeline.Pipeline
	stop     context.CancelFunc
}

func appOptions(ctx *cliContext.Context) []config.AppOption {
	return []config.AppOption{
		config.WithModelPath(ctx.ModelsPath),
		config.WithStylesFile(ctx.StylesFile),
		config.WithScratchPath(ctx.ScratchPath),
		config.WithEngine(ctx.Engine),
		config.WithSDBinary(ctx.SDBinary),
		config.WithThreads(ctx.Threads),
		config.WithMetricsTextfile(ctx.MetricsTextfile),
		config.WithProgressBar(ctx.ProgressBar),
	}
}

// newApplication builds the shared components. The run context is cancelled
// by SIGINT or SIGTERM; callers must Close the application once the run has
// returned.
func newApplication(ctx *cliContext.Context, opts ...config.AppOption) (*application, error) {
	runCtx, stop := signals.NotifyContext(context.Background())
	opts = append([]config.AppOption{config.WithContext(runCtx)}, opts...)
	appConfig := config.NewApplicationConfig(append(appOptions(ctx), opts...)...)

	styles := config.NewStyleRegistry()
	if appConfig.StylesFile != "" {
		if err := styles.LoadStylesFromFile(appConfig.StylesFile); err != nil {
			stop()
			return nil, err
		}
		xlog.Debug("Styles loaded", "file", appConfig.StylesFile)
	}

	loaderOpts := []model.LoaderOption{
		model.WithSingleActiveBackend(appConfig.SingleBackend),
		model.WithKeepLoaded(appConfig.KeepLoaded),
	}
	loader := model.NewModelLoader(appConfig.ModelPath, loaderOpts...)

	reporterOpts := []progress.Option{}
	if appConfig.ProgressBar {
		reporterOpts = append(reporterOpts, progress.WithBar(os.Stderr))
	}
	reporter := progress.NewReporter(os.Stdout, reporterOpts...)

	metrics := services.NewRunMetrics()

	return &application{
		config:   appConfig,
		styles:   styles,
		loader:   loader,
		reporter: reporter,
		metrics:  metrics,
		pipeline: pipeline.New(appConfig, styles, loader, reporter, pipeline.WithMetrics(metrics)),
		stop:     stop,
	}, nil
}

// Close releases every model and flushes the metrics.
func (a *application) Close() {
	defer a.stop()

	if err := a.loader.StopAll(); err != nil {
		xlog.Warn("error releasing models", "error", err)
	}
	if err := a.metrics.WriteTextfile(a.config.MetricsTextfile); err != nil {
		xlog.Warn("error writing metrics", "error", err, "path", a.config.MetricsTextfile)
	}
}
