// Command server runs the LINE bot: webhook, health probes, metrics and the
// directory refresh scheduler.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/garyellow/ntpu-directory-bot/internal/app"
	"github.com/garyellow/ntpu-directory-bot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
