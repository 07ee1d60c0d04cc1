// Command hyperspace-node runs a public signaling and relay peer: it
// accepts inbound WebSocket connections, authenticates peers by their
// P-256 PeerId, mediates WebRTC offer/answer/ICE exchange, and forwards
// application messages along source-specified peer paths.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/evan-brass/hyperspace/internal/util"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "hyperspace-node",
		Short: "A public signaling and relay peer for the hyperspace overlay network",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				util.EnableDebug()
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newKeygenCmd())
	return root
}

// rootContext mirrors the teacher's cmd/roj1 signal-handling idiom: cancel
// on Ctrl+C (os.Interrupt).
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printBanner() {
	pterm.Info.Println(fmt.Sprintf("hyperspace-node — v%s", version))
	pterm.Println()
}
