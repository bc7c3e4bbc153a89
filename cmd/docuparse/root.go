package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minoad/docuparse/internal/config"
	"github.com/minoad/docuparse/internal/logging"
)

var version = "0.1.0"

var (
	configPath string
	verbose    bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docuparse",
	Short: "Extract text from PDFs and images into a document store",
	Long: `docuparse walks a directory, extracts the text of every PDF and image it
finds and writes one record per file to the configured stores.

Files already stored are skipped unless --force is given, so a directory can be
processed repeatedly without duplicating records.

Configuration is read from the environment (and a .env file), optionally
overlaid by a YAML file given with --config or CONFIG_FILE.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if configPath != "" {
			if err := loaded.MergeFile(configPath); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
		}

		if err := logging.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetVerbose(verbose)

		cfg = loaded
		return nil
	},
}

// Execute runs the root command and reports a failure on stderr
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logging.NewLogger("cmd").Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
