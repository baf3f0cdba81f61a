package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvzrr/lvjb/internal/cli"
)

func main() {
	// The first signal cancels the command, which then fails; a second one
	// gets the default behaviour and kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "[lvjb]", err)
		os.Exit(cli.ExitFailure)
	}

	// Errors are already reported as tagged diagnostics.
	res, _ := cli.Run(ctx, wd, os.Args[1:], cli.Options{})
	stop()
	os.Exit(res.ExitCode)
}
