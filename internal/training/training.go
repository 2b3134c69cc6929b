// Package training implements the TRAINING substages and the INSTALL_MODEL
// stage on top of the Tesseract 3 training tools.
package training

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
)

// ErrMissingInput is returned when a file a step depends on does not exist.
var ErrMissingInput = errors.New("missing required input file")

// ErrNoRunner is returned when the environment has no tool runner.
var ErrNoRunner = errors.New("no tool runner configured")

// Trainer runs the training tools against the generated data directory.
type Trainer struct {
	data  config.DataConfig
	tools config.ToolsConfig
	model config.ModelConfig

	// WorkDir is searched, before the output directory, for the files the
	// tools drop in their working directory (inttemp, normproto, pffmtable).
	WorkDir string
}

// New creates a trainer from the configuration.
func New(cfg *config.Config) *Trainer {
	return &Trainer{
		data:    cfg.Data,
		tools:   cfg.Tools,
		model:   cfg.Model,
		WorkDir: ".",
	}
}

// Substeps returns the TRAINING substeps in execution order.
func (t *Trainer) Substeps() []pipeline.Substep {
	return []pipeline.Substep{
		{Substage: checkpoint.SubstageProcessUnicharset, Run: t.ProcessUnicharset},
		{Substage: checkpoint.SubstageGenerateFontProperties, Run: t.GenerateFontProperties},
		{Substage: checkpoint.SubstageGenerateTrFiles, Run: t.GenerateTrFiles},
		{Substage: checkpoint.SubstageShapeClustering, Run: t.ShapeClustering},
		{Substage: checkpoint.SubstageMFTraining, Run: t.MFTraining},
		{Substage: checkpoint.SubstageCNTraining, Run: t.CNTraining},
		{Substage: checkpoint.SubstageRenameFiles, Run: t.RenameFiles},
		{Substage: checkpoint.SubstageCombineTrainingData, Run: t.CombineTrainingData},
	}
}

// out joins name onto the output directory.
func (t *Trainer) out(name string) string {
	return filepath.Join(t.data.OutputDir, name)
}

// modelFile is <out>/<model>.<suffix>.
func (t *Trainer) modelFile(suffix string) string {
	return t.out(t.model.Name + "." + suffix)
}

func (t *Trainer) unicharsetPath() string { return t.modelFile("unicharset") }
func (t *Trainer) fontPropertiesPath() string { return t.out("font_properties") }
func (t *Trainer) xheightsPath() string { return t.out("xheights") }
func (t *Trainer) traineddataPath() string { return t.modelFile("traineddata") }
func (t *Trainer) batchUnicharset(i int) string {
	return t.out(fmt.Sprintf("%s_%d.unicharset", t.model.Name, i))
}

func requireRunner(env *pipeline.Env) error {
	if env.Tools == nil {
		return ErrNoRunner
	}
	return nil
}

func requireFile(path string) error {
	if !fsutil.Exists(path) {
		return fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	return nil
}

// findFiles walks root and returns the files with the given extension,
// sorted so batches are stable across resumes.
func findFiles(root, ext string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		// Leftovers of an interrupted tool run.
		if strings.HasSuffix(strings.TrimSuffix(path, filepath.Ext(path)), ".tmp") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s files in %s: %w", ext, root, err)
	}
	sort.Strings(files)
	return files, nil
}

func batches(files []string, size int) [][]string {
	if size <= 0 {
		size = len(files)
	}
	var out [][]string
	for i := 0; i < len(files); i += size {
		out = append(out, files[i:min(i+size, len(files))])
	}
	return out
}

// commit moves a tool's temporary output into place. Tools that produce no
// file for a batch still leave an empty marker so the batch is not rerun.
func commit(tmp, dst string) error {
	if fsutil.Exists(tmp) {
		if err := os.Rename(tmp, dst); err != nil {
			return fmt.Errorf("commit %s: %w", dst, err)
		}
		return nil
	}
	return fsutil.WriteFileAtomic(dst, nil, 0o644)
}

// relName is path relative to the output dir, without extension.
func (t *Trainer) relName(path string) string {
	rel, err := filepath.Rel(t.data.OutputDir, path)
	if err != nil {
		rel = path
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}
