package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/img-ai-studio/artgen/core/cli"
	"github.com/img-ai-studio/artgen/internal"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
)

func main() {
	var err error

	// Initialize xlog at a level of INFO, we will set the desired level after we parse the CLI options
	xlog.SetLogger(newLogger("info", "text", os.Stderr))

	// handle loading environment variables from .env files
	envFiles := []string{".env", "artgen.env"}
	homeDir, err := os.UserHomeDir()
	if err == nil {
		envFiles = append(envFiles, filepath.Join(homeDir, "artgen.env"), filepath.Join(homeDir, ".config/artgen.env"))
	}
	envFiles = append(envFiles, "/etc/artgen.env")

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			xlog.Debug("env file found, loading environment variables from file", "envFile", envFile)
			err = godotenv.Load(envFile)
			if err != nil {
				xlog.Error("failed to load environment variables from file", "error", err, "envFile", envFile)
				continue
			}
		}
	}

	ctx := kong.Parse(&cli.CLI,
		kong.Description(
			`  artgen turns photos into anime, cartoon, ghibli or comic artworks with img2img diffusion models.

Progress is written to stdout as PROGRESS:<n> / STATUS:<text> lines followed by SUCCESS.
Failures print a single ERROR:<message> line on stderr and exit with a non-zero code.

Version: ${version}
`,
		),
		kong.UsageOnError(),
		kong.Vars{
			"basepath": kong.ExpandPath("."),
			"version":  internal.PrintableVersion(),
		},
	)

	logLevel := "info"
	if cli.CLI.Debug && cli.CLI.LogLevel == nil {
		logLevel = "debug"
		cli.CLI.LogLevel = &logLevel
	}

	if cli.CLI.LogLevel == nil {
		cli.CLI.LogLevel = &logLevel
	}

	xlog.SetLogger(newLogger(*cli.CLI.LogLevel, *cli.CLI.LogFormat, os.Stderr))

	err = ctx.Run(&cli.CLI.Context)
	if err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}
