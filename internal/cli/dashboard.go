package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/dashboard"
)

var dashboardAddr string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the progress dashboard",
	Long: `Serve a web page showing pipeline progress. The page polls
/update_progress and receives pushes over /ws when the progress file changes.

Examples:
  traductor dashboard
  traductor dashboard --addr 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", "", "listen address (default from config)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := dashboardAddr
	if addr == "" {
		addr = cfg.Dashboard.Addr
	}

	logger := consoleLogger()
	srv := dashboard.New(readStore(), logger, cfg.Dashboard.PollInterval)
	return srv.Run(ctx, addr)
}
