package capture

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
)

const (
	overlayLeft       = 10
	overlayTop        = 30
	overlayLineHeight = 30
)

var overlayColor = color.NRGBA{0, 0, 255, 255}

// DrawOverlay returns a copy of frame with one translated line per row,
// starting at (10, 30) and 30 pixels apart.
func DrawOverlay(frame image.Image, lines []string) *image.NRGBA {
	dst := imaging.Clone(frame)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(overlayColor),
		Face: basicfont.Face7x13,
	}
	origin := dst.Bounds().Min
	for i, line := range lines {
		d.Dot = fixed.P(origin.X+overlayLeft, origin.Y+overlayTop+overlayLineHeight*i)
		d.DrawString(line)
	}
	return dst
}

// SaveOverlay writes img as PNG to path, replacing it atomically so viewers
// never see a partial frame.
func SaveOverlay(path string, img image.Image) error {
	return fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
}
