package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aimemory/engine/cmd/aimemory/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var silent *cli.SilentError
		code := 1
		if !errors.As(err, &silent) {
			// Any error that didn't come through a command's RunE as a
			// SilentError originated from cobra's own argument/flag
			// validation (spec §6.4 exit code 2, "invalid arguments").
			fmt.Fprintln(rootCmd.OutOrStderr(), err)
			code = 2
		}
		cancel()
		os.Exit(code)
	}
	cancel()
}
