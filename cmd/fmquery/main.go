// Command fmquery queries and edits FileMaker records through the Data API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/filemakergo/fmorm/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.Run(ctx, nil, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
