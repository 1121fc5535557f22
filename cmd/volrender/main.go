// volrender decodes, inspects, exports, and displays multi-resolution
// microscopy volumes stored as (optionally compressed) KTX containers.
//
// Run "volrender help" for the list of commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmlewis/volrender/cmd/volrender/cmd"
)

var (
	GitSHA string = "NA"
)

func main() {
	ctx, cnc := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cnc()
	go func() {
		// Restore default signal handling after the first interrupt.
		defer cnc()
		<-ctx.Done()
	}()
	if err := cmd.NewRoot(ctx, GitSHA).Execute(); err != nil {
		os.Exit(1)
	}
}
