package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/robgonnella/lanmap/cli/commands"
	app_info "github.com/robgonnella/lanmap/internal/app-info"
	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/core"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/transport"
	"github.com/spf13/viper"
)

/**
 * Main entry point for all commands
 * Here we setup environment config via viper
 */

func setRunTimeConfig() error {
	userHomeDir, err := os.UserHomeDir()

	if err != nil {
		return err
	}

	configDir := path.Join(userHomeDir, ".config", app_info.NAME)

	if err := os.MkdirAll(configDir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}

	logFile := path.Join(configDir, app_info.NAME+".log")

	configFile := path.Join(configDir, "config.yml")

	// share run-time config globally using viper
	viper.Set("log-file", logFile)
	viper.Set("config-dir", configDir)
	viper.Set("config-file", configFile)

	// LANMAP_TIMEOUT, LANMAP_INCLUDE_ALL ...
	viper.SetEnvPrefix(strings.ToUpper(app_info.NAME))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return nil
}

func loadConfig() (*config.Config, error) {
	configFile := viper.GetString("config-file")

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if err := config.Write(*config.Default()); err != nil {
			return nil, err
		}
	}

	return config.Load(configFile)
}

// Entry point for the cli
func main() {
	log := logger.New()

	if err := setRunTimeConfig(); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	conf, err := loadConfig()

	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	vendors, err := discovery.NewVendorRepo()

	if err != nil {
		log.Warn().Err(err).Msg("MAC vendor lookups disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	// Get the "root" cobra cli command
	cmd := commands.Root(&commands.CommandProps{
		Conf:      conf,
		Inspector: network.NewSystemInspector(),
		Opener:    transport.NewSystemOpener(),
		Vendors:   vendors,
	})

	// execute the cobra command and exit with error code if necessary
	err = cmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(core.ExitCode(err))
	}
}
