package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
)

var (
	inferLines int
	inferJSON  bool
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer pipeline progress from the execution log",
	Long: `Reconstruct the pipeline position from the last lines of the active log
(or the previous run's log) without touching the progress file. This is what
"traductor run" falls back to when the progress file is missing or corrupt.

Examples:
  traductor infer
  traductor infer --lines 20 --json`,
	Args: cobra.NoArgs,
	RunE: runInfer,
}

func init() {
	inferCmd.Flags().IntVarP(&inferLines, "lines", "n", 0, "log lines to inspect (default from config)")
	inferCmd.Flags().BoolVar(&inferJSON, "json", false, "print the inferred checkpoint as JSON")
}

func runInfer(cmd *cobra.Command, args []string) error {
	window := inferLines
	if window <= 0 {
		window = cfg.Inference.TailLines
	}
	out := cmd.OutOrStdout()

	for _, path := range []string{cfg.Log.ActivePath(), cfg.Log.PreviousActivePath()} {
		lines, err := inference.ReadTail(path, window)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		inf, ok := inference.Infer(lines)
		if !ok {
			continue
		}

		if inferJSON {
			return writeJSON(out, inf.Checkpoint())
		}
		fmt.Fprintf(out, "Log: %s\n", path)
		fmt.Fprintf(out, "  Línea: %s\n", inf.Line)
		fmt.Fprintf(out, "  Etapa: %s\n", inf.Stage.Label())
		if inf.Substage != "" {
			fmt.Fprintf(out, "  Sub-etapa: %s\n", inf.Substage.Label())
		}
		fmt.Fprintf(out, "  Terminada: %t\n", inf.Finished)
		if len(inf.Detail) > 0 {
			keys := make([]string, 0, len(inf.Detail))
			for k := range inf.Detail {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %s\n", k, inf.Detail[k])
			}
		}
		return nil
	}

	fmt.Fprintln(out, "No se encontró progreso en los logs")
	return nil
}
