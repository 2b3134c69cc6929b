package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/procwatch"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/synth"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/toolchain"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/training"
)

// ErrAlreadyRunning is returned when another pipeline process owns the
// progress file.
var ErrAlreadyRunning = errors.New("another pipeline run is in progress")

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run or resume the training pipeline",
	Long: `Run the training pipeline from the last checkpoint:

  1. Generación de datos de entrenamiento
  2. Entrenamiento (8 sub-etapas)
  3. Instalación del modelo

Finished stages and work items are skipped. Interrupting with Ctrl+C stops
between work items and keeps the checkpoint valid.

Examples:
  traductor run
  traductor run --config pvz.yaml
  traductor run --force   # start even if another run seems active`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even if another pipeline process is alive")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runForce {
		if err := ensureNotRunning(cmd); err != nil {
			return err
		}
	}

	logger, closeLogs := config.SetupLogger(cfg.Log, cfg.LogLevel())
	runID := pipeline.NewRunID()

	store := checkpoint.NewStore(cfg.ProgressFile,
		checkpoint.WithFallback(inference.FromLogs(cfg.Inference.TailLines, logger,
			cfg.Log.ActivePath(), cfg.Log.PreviousActivePath())),
		checkpoint.WithRetry(cfg.Store.SaveAttempts, cfg.Store.SaveDelay),
		checkpoint.WithLogger(logger),
	)

	m := metrics.NewCollector()
	tools := toolchain.NewExecRunner(cfg.Tools.BinDir, logger, m)
	env := pipeline.NewEnv(cfg, logger, store, tools, m, runID)
	env.OnClose(closeLogs)
	defer env.Close()

	registry, err := training.NewRegistry(cfg, synth.NewFontRenderer())
	if err != nil {
		return err
	}

	env.Logger.Info("Inicio del pipeline", "progress_file", cfg.ProgressFile, "model", cfg.Model.Name)
	err = pipeline.NewDriver(env, registry).Run(ctx)
	m.LogSummary(config.SkipActiveLog(context.WithoutCancel(ctx)), env.Logger)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Interrupted by a signal; the checkpoint is intact.
		return nil
	case err != nil:
		return err
	}
	env.Logger.Info("Pipeline completado")
	return nil
}

// ensureNotRunning refuses to start when another "traductor run" is alive.
func ensureNotRunning(cmd *cobra.Command) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	procs, err := procwatch.Find(cmd.Context(), exe)
	if err != nil {
		// The guard is advisory; a failed scan must not block the run.
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: cannot check for running pipelines: %v\n", err)
		return nil
	}
	if len(procs) > 0 {
		return fmt.Errorf("%w (pid %d); use --force to override", ErrAlreadyRunning, procs[0].PID)
	}
	return nil
}
