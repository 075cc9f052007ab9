// Package main provides the entry point for the tagsync CLI tool.
package main

import (
	"context"
	"os"
	"time"

	"github.com/agentstation/tagsync/cmd/tagsync/app"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	application, err := app.New(version, commit, date, builtBy)
	if err != nil {
		app.ExitOnError(err)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	runErr := application.Execute(ctx, os.Args[1:])

	// Fresh context: the signal context may already be cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		// Log shutdown error, but don't let it mask the original error
		application.Logger().Error().Err(shutdownErr).Msg("Shutdown error")
	}
	app.ExitOnError(runErr)
}
