package synth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
)

// ErrNoFonts is returned when the fonts directory holds no .ttf files.
var ErrNoFonts = errors.New("no .ttf fonts found")

// Generator is the GENERATE_TRAINING_DATA stage.
type Generator struct {
	cfg      config.DataConfig
	renderer Renderer
}

// NewGenerator creates the stage. A nil renderer uses FontRenderer.
func NewGenerator(cfg config.DataConfig, r Renderer) *Generator {
	if r == nil {
		r = NewFontRenderer()
	}
	return &Generator{cfg: cfg, renderer: r}
}

// Run renders every (font, size, block) page that is not already on disk.
func (g *Generator) Run(ctx context.Context, env *pipeline.Env) error {
	lines, err := LoadTrainingText(g.cfg.TrainingText, g.cfg.Dictionary)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("training text %s is empty", g.cfg.TrainingText)
	}
	fonts, err := ListFonts(g.cfg.FontsDir)
	if err != nil {
		return err
	}

	per := g.cfg.LinesPerImage
	blocks := (len(lines) + per - 1) / per
	total := len(fonts) * len(g.cfg.FontSizes) * blocks
	env.Logger.Info("Generando datos de entrenamiento",
		"fonts", len(fonts),
		"sizes", len(g.cfg.FontSizes),
		"lines", len(lines),
		"pages", total)

	tr := env.Track(checkpoint.StageGenerateTrainingData, checkpoint.SubstageImageGeneration, total)
	for _, f := range fonts {
		env.Logger.Info(inference.FontMessage(f.Name), "font_path", f.Path)

		for _, size := range g.cfg.FontSizes {
			for b := range blocks {
				if err := ctx.Err(); err != nil {
					return err
				}

				page := Page{
					Font:          f,
					Size:          size,
					Block:         b,
					Lines:         lines[b*per : min((b+1)*per, len(lines))],
					Width:         g.cfg.ImageWidth,
					LinesPerImage: per,
				}
				base := page.Base(g.cfg.OutputDir)
				if fsutil.Exists(base+".png") && fsutil.Exists(base+".box") {
					tr.Skip()
					continue
				}

				if err := g.writePage(page, base); err != nil {
					return err
				}
				env.Logger.Info(inference.ImageMessage(f.Name, size, b))
				if err := tr.Step(map[string]string{
					"current_font": f.Name,
					"font_size":    strconv.Itoa(size),
					"block":        strconv.Itoa(b),
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *Generator) writePage(page Page, base string) error {
	img, boxes, err := g.renderer.Render(page)
	if err != nil {
		return fmt.Errorf("render %s: %w", base, err)
	}

	// The image goes first: a page only counts once its box file exists.
	if err := fsutil.WriteAtomic(base+".png", 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	}); err != nil {
		return err
	}
	height := img.Bounds().Dy()
	return fsutil.WriteAtomic(base+".box", 0o644, func(w io.Writer) error {
		return WriteBoxes(w, boxes, height)
	})
}

// LoadTrainingText reads one entry per line and, when dictPath is set,
// appends every character of the headwords of a CEDICT dictionary, deduped
// and sorted.
func LoadTrainingText(textPath, dictPath string) ([]string, error) {
	data, err := os.ReadFile(textPath)
	if err != nil {
		return nil, fmt.Errorf("read training text: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}

	if dictPath == "" {
		return lines, nil
	}
	chars, err := dictionaryChars(dictPath)
	if err != nil {
		return nil, err
	}
	return append(lines, chars...), nil
}

func dictionaryChars(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	seen := make(map[rune]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) < 2 {
			continue
		}
		for _, r := range fields[0] {
			seen[r] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	slices.Sort(runes)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out, nil
}

// ListFonts returns the .ttf files of dir sorted by file name. The short name
// is the first three characters of the file name; clashes get a numeric
// suffix so their pages do not overwrite each other.
func ListFonts(dir string) ([]Font, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fonts dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ttf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFonts, dir)
	}
	sort.Strings(paths)

	used := make(map[string]int)
	fonts := make([]Font, 0, len(paths))
	for _, p := range paths {
		name := shortName(p)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s%d", name, n)
		}
		fonts = append(fonts, Font{Name: name, Path: p})
	}
	return fonts, nil
}

func shortName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	r := []rune(base)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}
