// Command hydrolink drives a reliable link over a serial-attached
// acoustic modem (or, for the simulate subcommand, an in-process lossy
// channel). Its shape follows the teacher's host/cmd/gopper-host/main.go:
// a single binary, device/baud flags, and one subcommand per operation —
// recast here as cobra subcommands since the teacher's interactive
// command loop doesn't map onto a one-shot send/recv/simulate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/benthic/hydrolink/logging"
)

var (
	device  string
	baud    int
	verbose bool
)

// registerPersistentFlags takes the *pflag.FlagSet directly (rather than
// letting cobra's Command.PersistentFlags() accessor stay the only place
// pflag is named) since every hydrolink subcommand shares this set.
func registerPersistentFlags(flags *pflag.FlagSet) {
	flags.StringVar(&device, "device", "/dev/ttyACM0", "serial device path")
	flags.IntVar(&baud, "baud", 9600, "baud rate")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	root := &cobra.Command{
		Use:   "hydrolink",
		Short: "Reliable ARQ transport over a lossy acoustic-modem channel",
	}
	registerPersistentFlags(root.PersistentFlags())

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetLevel(verbose)
	}

	root.AddCommand(newSendCmd(), newRecvCmd(), newSimulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hydrolink:", err)
		os.Exit(1)
	}
}
