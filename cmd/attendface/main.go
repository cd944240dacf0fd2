package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/logging"
)

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "attendface",
	Short: "Face identity and attendance service",
	Long: `attendface enrolls, recognizes and verifies faces with dlib descriptors
and records attendance for the recognized users.

Run 'attendface serve' to start the HTTP API, or use the offline commands
to manage enrolled faces directly against the configured store.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// .env file is optional, don't fail if not found
	config.LoadDotEnv()

	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}
	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("attendface %s starting", Version)
	logging.Debugf("Config loaded, storage backend: %s", cfg.Storage.Backend)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.WithError(err).Debug("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
