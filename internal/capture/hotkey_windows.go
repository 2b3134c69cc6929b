//go:build windows

package capture

import (
	"context"
	"log/slog"

	"github.com/moutend/go-hook/pkg/keyboard"
	"github.com/moutend/go-hook/pkg/types"
)

// WatchQuitKey installs a low-level keyboard hook and calls stop when Q is
// pressed. It returns when ctx is done or the key was seen.
func WatchQuitKey(ctx context.Context, stop context.CancelFunc, logger *slog.Logger) error {
	events := make(chan types.KeyboardEvent, 100)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.Message == types.WM_KEYDOWN && ev.VKCode == types.VK_Q {
					close(quit)
					return
				}
			}
		}
	}()

	return watchQuit(ctx, keyHook{
		install:   func() error { return keyboard.Install(nil, events) },
		uninstall: keyboard.Uninstall,
		quit:      quit,
	}, stop, logger)
}
