// Package cli provides the command-line interface for traductor.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	cfgFile string
	verbose bool

	// Loaded by PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "traductor",
	Short: "Train and use a Tesseract model for real-time game translation",
	Long: `Traductor trains a custom Tesseract OCR model from synthetic images and
uses it to translate on-screen text in real time.

The training pipeline (generate data, train, install) checkpoints its progress
to a JSON file and resumes where it stopped after a crash or restart. When the
progress file is lost, the position is recovered from the execution log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "DEBUG"
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./traductor.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "traductor %s\n", Version)
	},
}

// consoleLogger is the logger of commands that only read state.
func consoleLogger() *slog.Logger {
	return config.SetupConsoleLogger(cfg.LogLevel())
}

// readStore opens the progress file without log fallback or retries.
func readStore() *checkpoint.Store {
	return checkpoint.NewStore(cfg.ProgressFile, checkpoint.WithLogger(slog.New(slog.DiscardHandler)))
}
