package capture

import (
	"context"
	"fmt"
	"log/slog"
)

// keyHook wraps an OS keyboard hook. quit is closed once the quit key goes
// down.
type keyHook struct {
	install   func() error
	uninstall func() error
	quit      <-chan struct{}
}

// watchQuit installs h, waits for the quit key or ctx and removes the hook
// before returning.
func watchQuit(ctx context.Context, h keyHook, stop context.CancelFunc, logger *slog.Logger) error {
	if err := h.install(); err != nil {
		return fmt.Errorf("install keyboard hook: %w", err)
	}
	defer func() {
		if err := h.uninstall(); err != nil {
			logger.Warn("failed to remove keyboard hook", "error", err)
		}
	}()

	logger.Info("Presiona 'q' para salir")
	select {
	case <-ctx.Done():
	case <-h.quit:
		logger.Info("Tecla de salida detectada")
		stop()
	}
	return nil
}
