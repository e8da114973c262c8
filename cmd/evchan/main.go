// Command evchan builds event channel topologies, fires them and prints the
// order in which listeners ran.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/telnet2/evchan/cmd/evchan/commands"
)

func main() {
	// Interrupts cancel the command context, which ends trace --watch cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "evchan:", err)
		os.Exit(1)
	}
}
