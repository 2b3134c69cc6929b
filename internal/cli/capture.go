package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/capture"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/toolchain"
)

var (
	captureOutput   string
	captureFPS      float64
	captureLanguage string
	historyLimit    int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Translate on-screen text in real time",
	Long: `Capture a screen region, recognise its text with the trained model,
translate each line and write the frame with the translations drawn on it.

Translations come from the built-in dictionary, an optional YAML dictionary
(capture.dictionary) and, with capture.translator=ollama, a local LLM for lines
the dictionary does not know. Press q (Windows) or Ctrl+C to stop.

Examples:
  traductor capture
  traductor capture --fps 2 --output overlay.png
  traductor capture history -n 5`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

var captureHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived capture results",
	Args:  cobra.NoArgs,
	RunE:  runCaptureHistory,
}

func init() {
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "", "overlay image path (default from config)")
	captureCmd.Flags().Float64Var(&captureFPS, "fps", 0, "frames per second (default from config)")
	captureCmd.Flags().StringVarP(&captureLanguage, "lang", "l", "", "tesseract language (default from config)")

	captureHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max results")
	captureCmd.AddCommand(captureHistoryCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capCfg := cfg.Capture
	if captureOutput != "" {
		capCfg.Output = captureOutput
	}
	if captureFPS > 0 {
		capCfg.FPS = captureFPS
	}
	if captureLanguage != "" {
		capCfg.Language = captureLanguage
	}

	logger := consoleLogger()
	m := metrics.NewCollector()

	grabber, err := capture.NewScreenGrabber(capCfg)
	if err != nil {
		return err
	}
	logger.Info("Región de captura", "bounds", grabber.Bounds().String())

	dict, err := capture.LoadDictionary(capCfg.Dictionary)
	if err != nil {
		return err
	}

	var llm capture.Translator
	if capCfg.Translator == "ollama" {
		t, err := capture.NewLLMTranslator(capCfg.Ollama)
		if err != nil {
			return err
		}
		logger.Info("LLM translation enabled", "model", t.Model(), "host", capCfg.Ollama.Host)
		llm = t
	}

	runner := toolchain.NewExecRunner(cfg.Tools.BinDir, logger, m)
	loop := capture.NewLoop(capCfg,
		grabber,
		capture.NewTesseractRecognizer(runner, capCfg),
		capture.NewLayeredTranslator(dict, llm, logger),
		logger, m)

	if capCfg.Archive.Enabled {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		archive, err := capture.OpenArchive(openCtx, capCfg.Archive.DSN)
		cancel()
		if err != nil {
			return err
		}
		defer archive.Close()
		loop.Archive = archive
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})
	g.Go(func() error {
		if err := capture.WatchQuitKey(gctx, cancel, logger); err != nil {
			// Ctrl+C still works without the hook.
			logger.Warn("quit key unavailable", "error", err)
		}
		return nil
	})

	err = g.Wait()
	m.LogSummary(context.WithoutCancel(ctx), logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runCaptureHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Capture.Archive.Enabled {
		return fmt.Errorf("capture archive is disabled (set capture.archive.enabled and capture.archive.dsn)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	archive, err := capture.OpenArchive(ctx, cfg.Capture.Archive.DSN)
	if err != nil {
		return err
	}
	defer archive.Close()

	records, err := archive.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(records) == 0 {
		fmt.Fprintln(out, "No capture results archived")
		return nil
	}

	for _, r := range records {
		fmt.Fprintf(out, "#%d %s\n", r.ID, r.CapturedAt.Local().Format(time.DateTime))
		raw := strings.Split(r.RawText, "\n")
		translated := strings.Split(r.TranslatedText, "\n")
		for i, line := range raw {
			tr := ""
			if i < len(translated) {
				tr = translated[i]
			}
			fmt.Fprintf(out, "  %s → %s\n", line, tr)
		}
	}
	return nil
}
