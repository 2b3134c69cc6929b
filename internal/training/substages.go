package training

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
)

// GenerateFontProperties writes font_properties with one entry per page.
func (t *Trainer) GenerateFontProperties(ctx context.Context, env *pipeline.Env) error {
	boxes, err := findFiles(t.data.OutputDir, ".box")
	if err != nil {
		return err
	}
	if len(boxes) == 0 {
		return fmt.Errorf("%w: no .box files in %s", ErrMissingInput, t.data.OutputDir)
	}
	env.Logger.Info(inference.MarkerFontProperties, "entries", len(boxes))

	tr := env.Track(checkpoint.StageTraining, checkpoint.SubstageGenerateFontProperties, len(boxes))
	err = fsutil.WriteAtomic(t.fontPropertiesPath(), 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, box := range boxes {
			fmt.Fprintf(bw, "%s 0 0 0 0 0\n", t.relName(box))
		}
		return bw.Flush()
	})
	if err != nil {
		return err
	}
	return tr.Finish(nil)
}

// GenerateTrFiles runs tesseract in box.train mode for every page without a
// .tr file.
func (t *Trainer) GenerateTrFiles(ctx context.Context, env *pipeline.Env) error {
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

	tr := env.Track(checkpoint.StageTraining, checkpoint.SubstageGenerateTrFiles, len(boxes))
	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := strings.TrimSuffix(box, ".box")
		if fsutil.Exists(base + ".tr") {
			tr.Skip()
			continue
		}
		if err := requireFile(base + ".png"); err != nil {
			return err
		}

		name := t.relName(box)
		env.Logger.Info(inference.TrFileMessage(name))
		tmp := base + ".tmp"
		if _, err := env.Tools.Run(ctx, "tesseract", base+".png", tmp, "nobatch", "box.train"); err != nil {
			return fmt.Errorf("tr file for %s: %w", name, err)
		}
		if err := commit(tmp+".tr", base+".tr"); err != nil {
			return err
		}
		if err := tr.Step(map[string]string{"current_file": name}); err != nil {
			return err
		}
	}
	return nil
}

// batchTool runs a batched tool over the .tr files. Each batch writes to the
// path returned by output, which marks the batch done.
type batchTool struct {
	name     string
	marker   string
	substage checkpoint.Substage
	size     int
	limit    int
	output   func(i int) string
	args     func(out string) []string
}

func (t *Trainer) runBatches(ctx context.Context, env *pipeline.Env, bt batchTool) error {
	trs, err := findFiles(t.data.OutputDir, ".tr")
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		return fmt.Errorf("%w: no .tr files in %s", ErrMissingInput, t.data.OutputDir)
	}

	chunks := batches(trs, bt.size)
	if bt.limit > 0 && len(chunks) > bt.limit {
		env.Logger.Warn("batch limit reached, remaining .tr files are ignored",
			"tool", bt.name,
			"batches", len(chunks),
			"limit", bt.limit)
		chunks = chunks[:bt.limit]
	}

	tr := env.Track(checkpoint.StageTraining, bt.substage, len(chunks))
	for i, batch := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := bt.output(i)
		if fsutil.Exists(dst) {
			tr.Skip()
			continue
		}

		env.Logger.Info(inference.BatchMessage(bt.marker, i), "files", len(batch))
		tmp := dst + ".tmp"
		res, err := env.Tools.Run(ctx, bt.name, append(bt.args(tmp), batch...)...)
		if err != nil {
			return fmt.Errorf("%s batch %d: %w", bt.name, i, err)
		}
		env.Logger.Debug("batch output", "tool", bt.name, "batch", i, "stdout", res.Stdout)
		if err := commit(tmp, dst); err != nil {
			return err
		}
		if err := tr.Step(map[string]string{"batch": strconv.Itoa(i)}); err != nil {
			return err
		}
	}
	return nil
}

// ShapeClustering builds one shape table per batch of .tr files.
func (t *Trainer) ShapeClustering(ctx context.Context, env *pipeline.Env) error {
	if err := requireRunner(env); err != nil {
		return err
	}
	for _, p := range []string{t.fontPropertiesPath(), t.unicharsetPath()} {
		if err := requireFile(p); err != nil {
			return err
		}
	}
	return t.runBatches(ctx, env, batchTool{
		name:     "shapeclustering",
		marker:   inference.MarkerShapeClustering,
		substage: checkpoint.SubstageShapeClustering,
		size:     t.tools.ShapeClusteringBatch,
		output: func(i int) string {
			return t.modelFile("shapetable." + strconv.Itoa(i))
		},
		args: func(out string) []string {
			return []string{"-F", t.fontPropertiesPath(), "-U", t.unicharsetPath(), "-O", out}
		},
	})
}

// MFTraining runs mftraining per batch, creating the font_properties and
// xheights defaults when absent.
func (t *Trainer) MFTraining(ctx context.Context, env *pipeline.Env) error {
	if err := requireRunner(env); err != nil {
		return err
	}
	if err := requireFile(t.unicharsetPath()); err != nil {
		return err
	}
	defaults := map[string]string{
		t.fontPropertiesPath(): "Not 0 0 0 0 0\n",
		t.xheightsPath():       "Not 20\n",
	}
	for path, content := range defaults {
		if fsutil.Exists(path) {
			continue
		}
		env.Logger.Warn("creating default training input", "path", path)
		if err := fsutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
			return err
		}
	}

	return t.runBatches(ctx, env, batchTool{
		name:     "mftraining",
		marker:   inference.MarkerMFTraining,
		substage: checkpoint.SubstageMFTraining,
		size:     t.tools.MFTrainingBatch,
		limit:    t.tools.MFTrainingMaxBatches,
		output: func(i int) string {
			return t.modelFile(strconv.Itoa(i) + ".unicharset")
		},
		args: func(out string) []string {
			return []string{
				"-F", t.fontPropertiesPath(),
				"-X", t.xheightsPath(),
				"-U", t.unicharsetPath(),
				"-O", out,
				"-D", t.data.OutputDir,
			}
		},
	})
}

// CNTraining produces normproto from all .tr files.
func (t *Trainer) CNTraining(ctx context.Context, env *pipeline.Env) error {
	if err := requireRunner(env); err != nil {
		return err
	}
	if _, ok := t.locate("normproto"); ok || fsutil.Exists(t.modelFile("normproto")) {
		env.Logger.Info("normproto already present, skipping cntraining")
		return nil
	}
	trs, err := findFiles(t.data.OutputDir, ".tr")
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		return fmt.Errorf("%w: no .tr files in %s", ErrMissingInput, t.data.OutputDir)
	}

	env.Logger.Info(inference.MarkerCNTraining, "files", len(trs))
	args := append([]string{"-D", t.data.OutputDir + "/"}, trs...)
	if _, err := env.Tools.Run(ctx, "cntraining", args...); err != nil {
		return err
	}
	env.Logger.Info("cntraining completado con éxito")
	return nil
}

var trainedFiles = []string{"inttemp", "normproto", "pffmtable"}

// locate finds a tool output in the work dir or the output dir.
func (t *Trainer) locate(name string) (string, bool) {
	for _, dir := range []string{t.WorkDir, t.data.OutputDir} {
		p := filepath.Join(dir, name)
		if fsutil.Exists(p) {
			return p, true
		}
	}
	return "", false
}

// RenameFiles moves inttemp, normproto and pffmtable to <model>.<file> in the
// output directory.
func (t *Trainer) RenameFiles(ctx context.Context, env *pipeline.Env) error {
	env.Logger.Info(inference.MarkerRenaming)

	tr := env.Track(checkpoint.StageTraining, checkpoint.SubstageRenameFiles, len(trainedFiles))
	for _, name := range trainedFiles {
		dst := t.modelFile(name)
		if fsutil.Exists(dst) {
			tr.Skip()
			continue
		}
		src, ok := t.locate(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
		if err := fsutil.MoveFile(src, dst); err != nil {
			return fmt.Errorf("rename %s: %w", name, err)
		}
		env.Logger.Info("Archivo renombrado", "file", name, "dst", dst)
		if err := tr.Step(map[string]string{"current_file": name}); err != nil {
			return err
		}
	}
	return nil
}

// CombineTrainingData packs the model files into <model>.traineddata.
func (t *Trainer) CombineTrainingData(ctx context.Context, env *pipeline.Env) error {
	if err := requireRunner(env); err != nil {
		return err
	}
	if fsutil.Exists(t.traineddataPath()) {
		env.Logger.Info("traineddata already present, skipping combine", "path", t.traineddataPath())
		return nil
	}

	env.Logger.Info(inference.MarkerCombining)
	if _, err := env.Tools.Run(ctx, "combine_tessdata", t.modelFile("")); err != nil {
		return err
	}
	if err := requireFile(t.traineddataPath()); err != nil {
		return fmt.Errorf("combine_tessdata: %w", err)
	}
	return nil
}
