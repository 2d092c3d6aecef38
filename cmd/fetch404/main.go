package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fetch404/cmd/fetch404/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := commands.ExecuteContext(ctx)
	stop()
	os.Exit(code)
}
