package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the progress file",
	Long: `Delete the progress file so the next run starts from the beginning.

Generated data and training outputs are kept; finished work items are still
skipped on the next run. Refuses while a pipeline run is alive unless --force
is given.

Examples:
  traductor reset`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "reset even if a pipeline process is alive")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetForce {
		if err := ensureNotRunning(cmd); err != nil {
			return err
		}
	}

	store := readStore()
	_, err := store.Read()
	if errors.Is(err, checkpoint.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No progress file to reset")
		return nil
	}

	if err := store.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Path())
	return nil
}
