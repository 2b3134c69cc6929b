package training

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
)

// InstallModel copies <model>.traineddata into the tessdata directory. With
// no tessdata directory configured the model stays in the output directory.
func (t *Trainer) InstallModel(ctx context.Context, env *pipeline.Env) error {
	src := t.traineddataPath()
	if err := requireFile(src); err != nil {
		return err
	}
	if t.model.TessdataDir == "" {
		env.Logger.Warn("tessdata dir not configured, model left in output dir", "path", src)
		return nil
	}

	dst := filepath.Join(t.model.TessdataDir, filepath.Base(src))
	env.Logger.Info(inference.InstallingMessage(t.model.Name), "dst", dst)
	if err := fsutil.CopyFileAtomic(src, dst); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	tr := env.Track(checkpoint.StageInstallModel, checkpoint.SubstageNone, 1)
	return tr.Finish(map[string]string{"model": t.model.Name})
}
