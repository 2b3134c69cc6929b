// Package synth generates the synthetic OCR training pages: one PNG image and
// one Tesseract box file per block of training text, per font and size.
package synth

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
)

// Font is a TrueType font file and the short name used in output paths.
type Font struct {
	Name string
	Path string
}

// Page is one block of training lines rendered at one font size.
type Page struct {
	Font  Font
	Size  int
	Block int
	Lines []string
	Width int
	// LinesPerImage fixes the image height even for the last, shorter block.
	LinesPerImage int
}

// LineHeight is the vertical distance between baselines.
func (p Page) LineHeight() int {
	return p.Size + 4
}

// Height is the image height in pixels.
func (p Page) Height() int {
	n := max(p.LinesPerImage, len(p.Lines))
	return n * p.LineHeight()
}

// Dir is the output subdirectory for the page's font and size, e.g. Ari_12.
func (p Page) Dir(root string) string {
	return filepath.Join(root, fmt.Sprintf("%s_%d", p.Font.Name, p.Size))
}

// Base is the output path without extension, e.g. out/Ari_12/p0003.
func (p Page) Base(root string) string {
	return filepath.Join(p.Dir(root), fmt.Sprintf("p%04d", p.Block))
}

// Box is a glyph bounding box in image coordinates (origin top-left).
type Box struct {
	Char                     rune
	Left, Top, Right, Bottom int
}

// Renderer rasterises a page and reports the box of every visible glyph.
type Renderer interface {
	Render(page Page) (image.Image, []Box, error)
}

// WriteBoxes writes boxes in Tesseract's format, which measures y from the
// bottom of the image: "<char> <left> <bottom> <right> <top> <page>".
func WriteBoxes(w io.Writer, boxes []Box, height int) error {
	var b strings.Builder
	for _, box := range boxes {
		fmt.Fprintf(&b, "%c %d %d %d %d 0\n",
			box.Char, box.Left, height-box.Bottom, box.Right, height-box.Top)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
