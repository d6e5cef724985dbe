package cliContext

type Context struct {
	Debug     bool    `env:"ARTGEN_DEBUG,DEBUG" default:"false" hidden:"" help:"DEPRECATED, use --log-level=debug instead. Enable debug logging"`
	LogLevel  *string `env:"ARTGEN_LOG_LEVEL" enum:"error,warn,info,debug,trace" help:"Set the level of logs to output [${enum}]"`
	LogFormat *string `env:"ARTGEN_LOG_FORMAT" default:"default" enum:"default,text,json" help:"Set the format of logs to output [${enum}]"`

	ModelsPath      string `env:"ARTGEN_MODELS_PATH,MODELS_PATH" type:"path" default:"${basepath}/models" help:"Path containing the diffusion models, one directory per model id" group:"storage"`
	StylesFile      string `env:"ARTGEN_STYLES_FILE" type:"path" help:"YAML file overriding or adding styles" group:"storage"`
	ScratchPath     string `env:"ARTGEN_SCRATCH_PATH" type:"path" help:"Directory for intermediate images, defaults to the system temporary directory" group:"storage"`
	Engine          string `env:"ARTGEN_ENGINE" default:"auto" enum:"auto,library,cli" help:"Inference engine to use [${enum}]" group:"backend"`
	SDBinary        string `env:"ARTGEN_SD_BINARY" help:"stable-diffusion.cpp command line tool used by the cli engine" group:"backend"`
	Threads         int    `env:"ARTGEN_THREADS,THREADS" help:"Number of threads used for inference, defaults to the number of physical cores" group:"backend"`
	MetricsTextfile string `env:"ARTGEN_METRICS_TEXTFILE" type:"path" help:"Write run metrics in the Prometheus textfile format to this path" group:"observability"`
	ProgressBar     bool   `env:"ARTGEN_PROGRESS_BAR" default:"false" help:"Draw a progress bar on stderr" group:"observability"`
}
