package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/fretlab/cmd"
	"github.com/tphakala/fretlab/internal/buildinfo"
	"github.com/tphakala/fretlab/internal/conf"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := &buildinfo.Context{Version: version, BuildDate: buildDate}
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(build, settings)
	defer cmd.Shutdown()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
