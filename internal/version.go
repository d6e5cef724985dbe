package internal

import "fmt"

// Set with -ldflags "-X github.com/img-ai-studio/artgen/internal.Version=..."
var Version = "dev"
var Commit = ""

func PrintableVersion() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
