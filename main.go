// Package main is the entry point for switchstore.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/indexkit/switchstore/internal/cmd"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Cancel the root context on SIGINT/SIGTERM so servers and workers
	// drain instead of dying mid-write
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := cmd.NewApp().Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}

	return 0
}
