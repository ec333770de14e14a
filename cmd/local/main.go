package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdinternal "github.com/spacelift-io/acascheduler/cmd/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmdinternal.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
