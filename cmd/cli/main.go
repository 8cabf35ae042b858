package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benchscale/benchscale/cmd/cli/cmd"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/sampler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, sampler.ErrUsage) || errors.Is(err, database.ErrInvalidWorkload) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
