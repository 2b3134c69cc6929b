package training

import (
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/inference"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/synth"
)

// NewRegistry assembles the full pipeline: data generation, training and
// installation. A nil renderer uses the TrueType renderer.
func NewRegistry(cfg *config.Config, r synth.Renderer) (*pipeline.Registry, error) {
	gen := synth.NewGenerator(cfg.Data, r)
	t := New(cfg)

	return pipeline.NewRegistry(
		pipeline.Entry{
			Stage: checkpoint.StageGenerateTrainingData,
			Run:   gen.Run,
			Done:  inference.MarkerDataGenerated,
		},
		pipeline.Entry{
			Stage:    checkpoint.StageTraining,
			Substeps: t.Substeps(),
			Done:     inference.MarkerTrainingDone,
		},
		pipeline.Entry{
			Stage: checkpoint.StageInstallModel,
			Run:   t.InstallModel,
			Done:  inference.MarkerInstalled,
		},
	)
}
