package commands

import (
	"os"

	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/**
 * Command to remove config and log files
 */
func clear() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Removes the config file and default log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()

			for _, key := range []string{"config-file", "log-file"} {
				file := viper.GetString(key)

				if file == "" {
					continue
				}

				if err := os.RemoveAll(file); err != nil {
					return err
				}

				log.Info().Str("file", file).Msg("removed")
			}

			return nil
		},
	}

	return cmd
}
