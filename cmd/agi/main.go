// cmd/agi/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumagi/agi-sdk-go/internal/cli"
	"github.com/quantumagi/agi-sdk-go/internal/observability"
)

func main() {
	// Ctrl+C cancels the root context so the loop can shut the session down
	// cleanly before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
