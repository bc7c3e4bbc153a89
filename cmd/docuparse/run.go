package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/minoad/docuparse/internal/dispatch"
	"github.com/minoad/docuparse/internal/logging"
)

var (
	force  bool
	dryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run [directory]",
	Short: "Extract and store every PDF and image in a directory",
	Long: `Process the .pdf, .png, .jpeg and .jpg files directly inside a directory.
Subdirectories and other files are ignored.

Each file is extracted once and written to every configured store that does not
already hold it. With --force existing records are replaced.`,
	Example: `  # Store new files only
  docuparse run ./scans

  # Show what would be processed
  docuparse run ./scans --dry-run

  # Reprocess everything into Postgres and Redis
  STORE_BACKENDS=postgres,redis docuparse run ./scans --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDirectory(args[0], dispatch.Options{Force: force, DryRun: dryRun})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Process the fixture directory set by TEST_DATA_DIR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TestDataDir == "" {
			return fmt.Errorf("TEST_DATA_DIR is not set")
		}
		return runDirectory(cfg.TestDataDir, dispatch.Options{Force: force})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)

	runCmd.Flags().BoolVar(&force, "force", false, "Replace records that already exist")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log planned work without extracting or writing")
	testCmd.Flags().BoolVar(&force, "force", false, "Replace records that already exist")
}

func runDirectory(dir string, opts dispatch.Options) error {
	logger := logging.NewLogger("run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("Failed to close pipeline", "error", err)
		}
	}()

	report, err := p.dispatcher.Run(ctx, dir, opts)
	if err != nil {
		return err
	}

	for _, f := range report.Failed {
		logger.Warn("File not stored", "path", f.Path, "category", f.Category, "code", f.Code)
	}
	logger.Info("Run complete",
		"run_id", report.RunID,
		"dry_run", report.DryRun,
		"candidates", report.Candidates,
		"extracted", report.Extracted,
		"written", report.Written,
		"skipped", report.Skipped,
		"failed", len(report.Failed))

	if !report.DryRun {
		stats, err := p.storage.GetStats(ctx)
		if err != nil {
			logger.Warn("Failed to read store stats", "error", err)
		} else {
			logger.Info("Store totals", "stats", stats)
		}
	}
	return nil
}
