package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dennisdiepolder/monti/pbxlive/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// Share the server's .env when run from the deployment directory
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
