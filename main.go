package main

import (
	"fmt"
	"os"

	"github.com/tphakala/audiorouter/cmd"
	"github.com/tphakala/audiorouter/internal/buildinfo"
	"github.com/tphakala/audiorouter/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	logging.Init()

	rootCmd := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
