//go:build !windows

package capture

import (
	"context"
	"log/slog"
)

// WatchQuitKey is a no-op outside Windows; stop the tool with Ctrl+C.
func WatchQuitKey(ctx context.Context, _ context.CancelFunc, logger *slog.Logger) error {
	logger.Debug("global quit key not supported on this platform")
	<-ctx.Done()
	return nil
}
