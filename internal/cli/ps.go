package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/procwatch"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running pipeline processes",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	procs, err := procwatch.Find(cmd.Context(), "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(procs) == 0 {
		fmt.Fprintln(out, "No pipeline processes running")
		return nil
	}

	fmt.Fprintf(out, "%-8s %-10s %-8s %-8s %s\n", "PID", "STARTED", "CPU%", "RSS", "COMMAND")
	fmt.Fprintln(out, "------------------------------------------------------------------------")
	for _, p := range procs {
		started := "-"
		if !p.Started.IsZero() {
			started = p.Started.Format(time.TimeOnly)
		}
		fmt.Fprintf(out, "%-8d %-10s %-8.1f %-8s %s\n",
			p.PID, started, p.CPU, formatBytes(p.RSS), strings.Join(p.Cmdline, " "))
	}
	return nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c", float64(n)/float64(div), "KMGTPE"[exp])
}
