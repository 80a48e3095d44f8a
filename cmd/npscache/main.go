// Package main runs the npscache admin CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opendatakr/npscache/internal/cli"
	entrypoint "github.com/opendatakr/npscache/internal/platform/cmd"
	"github.com/opendatakr/npscache/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := cli.NewRootCommand()
	if err != nil {
		config.Exitf("npscache: %v", err)
	}
	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCLI, func(ctx context.Context) error {
		return root.ExecuteContext(ctx)
	})
	if err != nil {
		config.Exitf("npscache: %v", err)
	}
}
