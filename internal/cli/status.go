package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress",
	Long: `Show the progress recorded in the progress file.

With --watch the view refreshes until the pipeline finishes or fails: an
interactive progress bar on a terminal, one line per change otherwise.

Examples:
  traductor status
  traductor status --json
  traductor status --watch`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the dashboard view as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep watching until the run ends")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := readStore()
	out := cmd.OutOrStdout()

	if !statusWatch {
		v, err := currentView(store)
		if err != nil {
			return err
		}
		if statusJSON {
			return writeJSON(out, v)
		}
		printView(out, v)
		return nil
	}

	if f, ok := out.(*os.File); ok && !statusJSON && term.IsTerminal(int(f.Fd())) {
		return runStatusProgress(store, cfg.Dashboard.PollInterval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchStatus(ctx, out, store, cfg.Dashboard.PollInterval)
}

// currentView reads the progress file. A missing file is the not-started
// view; an unreadable one is an error.
func currentView(r checkpointReader) (checkpoint.View, error) {
	cp, err := r.Read()
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return checkpoint.NotStartedView(), nil
	case err != nil:
		return checkpoint.View{}, err
	}
	return checkpoint.NewView(cp), nil
}

// watchStatus prints the view each time it changes until the run ends or ctx
// is done.
func watchStatus(ctx context.Context, w io.Writer, store *checkpoint.Store, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		cp, err := store.Read()
		if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
			fmt.Fprintf(w, "Warning: %v\n", err)
		} else {
			v := checkpoint.NotStartedView()
			if err == nil {
				v = checkpoint.NewView(cp)
			}
			data, _ := json.Marshal(v)
			if !slices.Equal(data, last) {
				last = data
				if statusJSON {
					fmt.Fprintln(w, string(data))
				} else {
					fmt.Fprintln(w, summaryLine(v))
				}
			}
			if err == nil && runEnded(cp) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runEnded reports whether the pipeline has completed or stopped on an error.
func runEnded(cp checkpoint.Checkpoint) bool {
	if cp.ScriptStatus == checkpoint.ScriptError {
		return true
	}
	return cp.Stage == checkpoint.StageInstallModel && cp.Finished()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func summaryLine(v checkpoint.View) string {
	var b strings.Builder
	b.WriteString(v.CurrentStage)
	if v.Substage != "" {
		fmt.Fprintf(&b, " / %s", v.Substage)
	}
	if v.StageStatus != "" {
		fmt.Fprintf(&b, " [%s]", v.StageStatus)
	}
	fmt.Fprintf(&b, " %.2f%%", v.Percentage)
	if v.ProcessedCount != nil && v.TotalCount != nil {
		fmt.Fprintf(&b, " (%d/%d)", *v.ProcessedCount, *v.TotalCount)
	}
	if v.ScriptStatus == checkpoint.ScriptError.Label() {
		fmt.Fprintf(&b, " ERROR: %s", v.Details["error"])
	}
	return b.String()
}

func printView(w io.Writer, v checkpoint.View) {
	if !v.Available {
		fmt.Fprintf(w, "Etapa actual: %s\n", v.CurrentStage)
		fmt.Fprintf(w, "Pendientes: %s\n", strings.Join(v.PendingStages, ", "))
		return
	}

	fmt.Fprintf(w, "Etapa actual: %s (%s)\n", v.CurrentStage, v.StageStatus)
	if v.Substage != "" {
		fmt.Fprintf(w, "  Sub-etapa: %s\n", v.Substage)
	}
	fmt.Fprintf(w, "  Estado del script: %s\n", v.ScriptStatus)
	if v.ProcessedCount != nil && v.TotalCount != nil {
		fmt.Fprintf(w, "  Progreso: %d/%d (%.2f%%)\n", *v.ProcessedCount, *v.TotalCount, v.Percentage)
	} else {
		fmt.Fprintf(w, "  Progreso: %.2f%%\n", v.Percentage)
	}
	if v.RunID != "" {
		fmt.Fprintf(w, "  Run: %s\n", v.RunID)
	}
	if v.UpdatedAt != nil {
		fmt.Fprintf(w, "  Actualizado: %s\n", v.UpdatedAt.Format(time.RFC3339))
	}

	fmt.Fprintf(w, "\nCompletadas (%d):\n", len(v.CompletedStages))
	for _, s := range v.CompletedStages {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	fmt.Fprintf(w, "Pendientes (%d):\n", len(v.PendingStages))
	for _, s := range v.PendingStages {
		fmt.Fprintf(w, "  - %s\n", s)
	}

	if len(v.Details) > 0 {
		fmt.Fprintln(w, "\nDetalles:")
		keys := make([]string, 0, len(v.Details))
		for k := range v.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, v.Details[k])
		}
	}
}
