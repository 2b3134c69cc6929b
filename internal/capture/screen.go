// Package capture is the live screen translation tool: grab a screen region,
// OCR it with the trained model, translate the lines and write an overlay.
package capture

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/kbinani/screenshot"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
)

// Grabber returns the current frame.
type Grabber interface {
	Grab() (image.Image, error)
}

// ScreenGrabber captures a rectangle of a display.
type ScreenGrabber struct {
	bounds image.Rectangle
}

// NewScreenGrabber resolves the configured region against the display
// bounds. A zero-size region captures the whole display.
func NewScreenGrabber(cfg config.CaptureConfig) (*ScreenGrabber, error) {
	n := screenshot.NumActiveDisplays()
	if cfg.Display >= n {
		return nil, fmt.Errorf("display %d not found (%d active)", cfg.Display, n)
	}
	display := screenshot.GetDisplayBounds(cfg.Display)
	return &ScreenGrabber{bounds: regionBounds(display, cfg.Region)}, nil
}

// regionBounds positions region relative to the display origin and clips it.
func regionBounds(display image.Rectangle, region config.RegionConfig) image.Rectangle {
	if region.Width == 0 || region.Height == 0 {
		return display
	}
	r := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height).
		Add(display.Min)
	return r.Intersect(display)
}

// Bounds is the captured rectangle in virtual screen coordinates.
func (g *ScreenGrabber) Bounds() image.Rectangle {
	return g.bounds
}

// Grab captures the region.
func (g *ScreenGrabber) Grab() (image.Image, error) {
	if g.bounds.Empty() {
		return nil, fmt.Errorf("capture region is empty")
	}
	img, err := screenshot.CaptureRect(g.bounds)
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}

// Preprocess converts img to grayscale and applies a binary threshold: pixels
// brighter than threshold become white, the rest black.
func Preprocess(img image.Image, threshold uint8) *image.NRGBA {
	gray := imaging.Grayscale(img)
	white := color.NRGBA{255, 255, 255, 255}
	black := color.NRGBA{0, 0, 0, 255}

	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if gray.NRGBAAt(x, y).R > threshold {
				gray.SetNRGBA(x, y, white)
			} else {
				gray.SetNRGBA(x, y, black)
			}
		}
	}
	return gray
}
