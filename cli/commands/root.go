package commands

import (
	"os"

	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CommandProps injected props that can be made available to all commands
type CommandProps struct {
	Conf      *config.Config
	Inspector network.Inspector
	Opener    transport.Opener
	// Vendors may be nil, hosts are then reported without vendor
	Vendors discovery.VendorRepo
}

// Root builds and returns our root command
func Root(props *CommandProps) *cobra.Command {
	var verbose bool
	var silent bool
	var logFile string

	cmd := &cobra.Command{
		Use:           "lanmap",
		Short:         "Discover hosts on the local network",
		SilenceUsage:  true,
		SilenceErrors: true,
		// This runs before all commands and all sub-commands
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// set logging verbosity for all loggers
			zerolog.SetGlobalLevel(zerolog.InfoLevel)

			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			if silent {
				zerolog.SetGlobalLevel(zerolog.Disabled)
			}

			if logFile != "" {
				file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)

				if err != nil {
					return err
				}

				logger.GlobalSetLogFile(file)
			}

			return nil
		},
	}

	// Persistent flags available to all commands
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	cmd.PersistentFlags().BoolVar(&silent, "silent", false, "disables all logging")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stderr")

	cmd.AddCommand(discover(props))
	cmd.AddCommand(info(props))
	cmd.AddCommand(clear())
	cmd.AddCommand(version())

	return cmd
}
