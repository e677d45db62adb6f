package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Ctrl-C ends `logs --follow` and other long waits through the command context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || interrupted:
		os.Exit(130)
	default:
		fmt.Fprintln(os.Stderr, "shuttle:", err)
		os.Exit(1)
	}
}
