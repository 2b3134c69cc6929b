package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/toolchain"
)

// Recognizer extracts text lines from an image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// TesseractRecognizer runs the tesseract CLI with the trained language.
type TesseractRecognizer struct {
	runner   toolchain.Runner
	language string
	oem      int
	psm      int
}

// NewTesseractRecognizer creates a recognizer from the capture settings.
func NewTesseractRecognizer(runner toolchain.Runner, cfg config.CaptureConfig) *TesseractRecognizer {
	return &TesseractRecognizer{
		runner:   runner,
		language: cfg.Language,
		oem:      cfg.OEM,
		psm:      cfg.PSM,
	}
}

// Recognize writes img to a temporary PNG and reads tesseract's stdout.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	f, err := os.CreateTemp("", "traductor-frame-*.png")
	if err != nil {
		return nil, fmt.Errorf("create frame file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close frame file: %w", err)
	}

	res, err := r.runner.Run(ctx, "tesseract", f.Name(), "stdout",
		"-l", r.language,
		"--oem", strconv.Itoa(r.oem),
		"--psm", strconv.Itoa(r.psm))
	if err != nil {
		return nil, err
	}
	return SplitLines(res.Stdout), nil
}

// SplitLines returns the non-blank lines of text, trimmed.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\f"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
