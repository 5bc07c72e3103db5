// Package main provides ngnfs-debugfs, a debugging shell over the
// client block cache and device files.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/versity/ngnfs-go/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, sigCh))
}
