// Package main provides the blockdelete CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockdelete/blockdelete/internal/app"
	"github.com/blockdelete/blockdelete/internal/vosk"
)

// main wires process signal handling and the vosk engine to the application runner.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr, vosk.New)
	os.Exit(exitCode)
}
