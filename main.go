package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tphakala/pestguard-go/cmd"
	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/logging"
)

// set through ldflags at build time
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		os.Exit(1)
	}
}
