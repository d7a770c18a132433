// Command vacuum-controller drives a vacuum pump and a two-coil valve from
// GPIO lines, cycling them on a watchdog timer and accepting commands over
// MQTT and HTTP.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build time
var Version = "dev"

const defaultConfigPath = "/etc/vacuum-controller/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "vacuum-controller",
		Short: "Timed vacuum pump and valve controller",
		Long: `vacuum-controller sequences a vacuum pump and a bistable valve.

With automatic cycling enabled the pump is started, the valve opened, and
after the pump lead time the valve is closed and the pump stopped once the
valve has settled. The cycle repeats every vacuum_timer seconds.

Example:
  # Run the daemon with the default config file
  vacuum-controller run

  # Validate a config file
  vacuum-controller check-config -c ./vacuum.yaml

  # Ask a running daemon to open the valve
  vacuum-controller send FORCE_VALVE_OPEN`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML config file (missing file uses defaults)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newCheckConfigCmd(&configPath))
	root.AddCommand(newCommandsCmd())
	root.AddCommand(newSendCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vacuum-controller version %s\n", Version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
