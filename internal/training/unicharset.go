package training

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
)

// ProcessUnicharset extracts a unicharset per batch of box files and merges
// them into <model>.unicharset.
func (t *Trainer) ProcessUnicharset(ctx context.Context, env *pipeline.Env) error {
	if err := requireRunner(env); err != nil {
		return err
	}
	boxes, err := findFiles(t.data.OutputDir, ".box")
	if err != nil {
		return err
	}
	if len(boxes) == 0 {
		return fmt.Errorf("%w: no .box files in %s", ErrMissingInput, t.data.OutputDir)
	}

	chunks := batches(boxes, t.tools.UnicharsetBatch)
	tr := env.Track(checkpoint.StageTraining, checkpoint.SubstageProcessUnicharset, len(chunks))
	for i, batch := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := t.batchUnicharset(i)
		if fsutil.Exists(dst) {
			tr.Skip()
			continue
		}

		env.Logger.Info(inference.BatchMessage(inference.MarkerUnicharset, i), "files", len(batch))
		tmp := dst + ".tmp"
		args := append([]string{"--output_unicharset", tmp}, batch...)
		if _, err := env.Tools.Run(ctx, "unicharset_extractor", args...); err != nil {
			return fmt.Errorf("unicharset batch %d: %w", i, err)
		}
		if err := commit(tmp, dst); err != nil {
			return err
		}
		if err := tr.Step(map[string]string{"batch": strconv.Itoa(i)}); err != nil {
			return err
		}
	}

	return t.mergeUnicharsets(env)
}

func (t *Trainer) mergeUnicharsets(env *pipeline.Env) error {
	if err := requireFile(t.batchUnicharset(0)); err != nil {
		return err
	}
	paths, err := filepath.Glob(t.out(t.model.Name + "_*.unicharset"))
	if err != nil {
		return fmt.Errorf("list unicharsets: %w", err)
	}

	seen := make(map[rune]struct{})
	for _, p := range paths {
		if err := readUnicharset(p, t.model.HanOnly, seen); err != nil {
			return err
		}
	}
	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	slices.Sort(chars)

	if err := fsutil.WriteAtomic(t.unicharsetPath(), 0o644, func(w io.Writer) error {
		return writeUnicharset(w, chars)
	}); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(t.modelFile("config"), nil, 0o644); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(t.out("radical-stroke.txt"),
		[]byte("# Placeholder for radical-stroke data\n"), 0o644); err != nil {
		return err
	}

	env.Logger.Info("Combinación y limpieza de unicharset completada",
		"chars", len(chars),
		"batches", len(paths),
		"han_only", t.model.HanOnly)
	return nil
}

// readUnicharset adds the characters of a unicharset file to seen. The first
// line is the entry count; each entry starts with its character.
func readUnicharset(path string, hanOnly bool, seen map[rune]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open unicharset: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || utf8.RuneCountInString(fields[0]) != 1 {
			continue
		}
		r, _ := utf8.DecodeRuneInString(fields[0])
		if hanOnly && !unicode.Is(unicode.Han, r) {
			continue
		}
		seen[r] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read unicharset %s: %w", path, err)
	}
	return nil
}

func writeUnicharset(w io.Writer, chars []rune) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(chars))
	for _, r := range chars {
		fmt.Fprintf(bw, "%c %d %s 0\n", r, r, category(r))
	}
	return bw.Flush()
}

// majorCategories are the two-letter Unicode general categories, sorted.
var majorCategories = func() []string {
	var names []string
	for name := range unicode.Categories {
		if len(name) == 2 && unicode.IsLower(rune(name[1])) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}()

// category returns the Unicode general category of r, e.g. "Lo".
func category(r rune) string {
	for _, name := range majorCategories {
		if unicode.Is(unicode.Categories[name], r) {
			return name
		}
	}
	return "Cn"
}
