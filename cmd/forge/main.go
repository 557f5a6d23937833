package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRoot().Command()
	if cmd, err := rootCmd.ExecuteContextC(ctx); err != nil {
		switch err := err.(type) {
		case usageError:
			cmd.Println(err)
			cmd.Println(cmd.UsageString())
			os.Exit(1)
		case exitError:
			// The run report is already printed.
			os.Exit(err.code)
		default:
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
}
