package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
)

// StageError reports the stage (and substage) that halted a run.
type StageError struct {
	Stage    checkpoint.Stage
	Substage checkpoint.Substage
	Err      error
}

func (e *StageError) Error() string {
	if e.Substage != checkpoint.SubstageNone {
		return fmt.Sprintf("stage %s/%s: %v", e.Stage, e.Substage, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Driver walks the registry from the recorded checkpoint.
type Driver struct {
	env      *Env
	registry *Registry
}

// NewDriver creates a driver.
func NewDriver(env *Env, registry *Registry) *Driver {
	return &Driver{env: env, registry: registry}
}

// Run loads the checkpoint and resumes from it.
func (d *Driver) Run(ctx context.Context) error {
	cp, src := d.env.Store.Load()
	d.env.Logger.Info("progress loaded",
		"source", string(src),
		"stage", cp.Stage.String(),
		"stage_status", string(cp.StageStatus),
		"substage", string(cp.Substage),
		"script_status", string(cp.ScriptStatus))
	return d.RunFrom(ctx, cp)
}

// RunFrom executes every stage from the resume point of cp. It stops at the
// first failure, leaving the failing stage STARTED with script status ERROR.
func (d *Driver) RunFrom(ctx context.Context, cp checkpoint.Checkpoint) error {
	entries := d.registry.Entries()
	start := d.registry.StartIndex(cp)
	if start >= len(entries) {
		d.env.Logger.Info("Todos los procesos han sido completados")
		return nil
	}

	for _, entry := range entries[start:] {
		if err := ctx.Err(); err != nil {
			return d.interrupted(entry.Stage, err)
		}

		current, _ := d.env.Store.Load()
		if current.Stage == entry.Stage && current.Finished() {
			d.env.Logger.Info("Etapa ya completada, omitiendo", "stage", entry.Stage.String())
			continue
		}

		d.env.Logger.Info("Iniciando etapa: "+entry.Stage.Label(), "stage", entry.Stage.String())
		began := time.Now()

		var sub checkpoint.Substage
		var err error
		if entry.Composite() {
			sub, err = d.runComposite(ctx, entry, current)
		} else {
			err = d.runAtomic(ctx, entry)
		}
		if err != nil {
			d.env.Metrics.RecordFailure(metrics.StageOp(entry.Stage.String()))
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return d.interrupted(entry.Stage, err)
			}
			return d.fail(entry.Stage, sub, err)
		}
		d.env.Metrics.RecordTiming(metrics.StageOp(entry.Stage.String()), time.Since(began))

		if err := d.finish(entry); err != nil {
			return d.fail(entry.Stage, checkpoint.SubstageNone, err)
		}
	}
	return nil
}

func (d *Driver) runAtomic(ctx context.Context, entry Entry) error {
	if err := d.env.Store.Save(checkpoint.Checkpoint{
		Stage:        entry.Stage,
		StageStatus:  checkpoint.StatusStarted,
		ScriptStatus: checkpoint.ScriptActive,
	}); err != nil {
		return err
	}
	return entry.Run(ctx, d.env)
}

// runComposite resumes at the recorded substage and walks the rest. It
// returns the substage that failed, if any.
func (d *Driver) runComposite(ctx context.Context, entry Entry, current checkpoint.Checkpoint) (checkpoint.Substage, error) {
	from := 0
	if current.Stage == entry.Stage && current.Substage != checkpoint.SubstageNone {
		for i, s := range entry.Substeps {
			if s.Substage == current.Substage {
				from = i
				break
			}
		}
	}
	if from > 0 {
		d.env.Logger.Info("Reanudando desde la sub-etapa: "+entry.Substeps[from].Substage.Label(),
			"stage", entry.Stage.String(),
			"substage", string(entry.Substeps[from].Substage))
	}

	for i := from; i < len(entry.Substeps); i++ {
		step := entry.Substeps[i]
		if err := ctx.Err(); err != nil {
			return step.Substage, err
		}

		if err := d.env.Store.Save(checkpoint.Checkpoint{
			Stage:        entry.Stage,
			StageStatus:  checkpoint.StatusStarted,
			Substage:     step.Substage,
			ScriptStatus: checkpoint.ScriptActive,
		}); err != nil {
			return step.Substage, err
		}

		d.env.Logger.Info("Ejecutando etapa: "+step.Substage.Label(),
			"stage", entry.Stage.String(),
			"substage", string(step.Substage))
		began := time.Now()
		if err := step.Run(ctx, d.env); err != nil {
			d.env.Metrics.RecordFailure(metrics.SubstageOp(string(step.Substage)))
			return step.Substage, err
		}
		d.env.Metrics.RecordTiming(metrics.SubstageOp(string(step.Substage)), time.Since(began))
	}
	return checkpoint.SubstageNone, nil
}

// finish saves FINISHED with full totals and logs the completion marker.
func (d *Driver) finish(entry Entry) error {
	total := 1
	if entry.Composite() {
		total = len(entry.Substeps)
	} else if latest, _ := d.env.Store.Load(); latest.Stage == entry.Stage &&
		latest.Detail != nil && latest.Detail.TotalCount != nil && *latest.Detail.TotalCount > 0 {
		total = *latest.Detail.TotalCount
	}

	if err := d.env.Store.Save(checkpoint.Checkpoint{
		Stage:        entry.Stage,
		StageStatus:  checkpoint.StatusFinished,
		Detail:       checkpoint.Counts(total, total),
		ScriptStatus: checkpoint.ScriptActive,
	}); err != nil {
		return err
	}

	done := entry.Done
	if done == "" {
		done = "Etapa completada: " + entry.Stage.Label()
	}
	d.env.Logger.Info(done, "stage", entry.Stage.String())
	return nil
}

// fail records the failure in the checkpoint, keeping the counters the stage
// saved last, and returns a StageError.
func (d *Driver) fail(stage checkpoint.Stage, sub checkpoint.Substage, cause error) error {
	stageErr := &StageError{Stage: stage, Substage: sub, Err: cause}
	d.env.Logger.Error("Error en la etapa",
		"stage", stage.String(),
		"substage", string(sub),
		"error", cause)

	if errors.Is(cause, checkpoint.ErrSaveExhausted) {
		// Storage is unusable; nothing more can be recorded.
		return stageErr
	}

	cp := checkpoint.Checkpoint{
		Stage:        stage,
		StageStatus:  checkpoint.StatusStarted,
		Substage:     sub,
		ScriptStatus: checkpoint.ScriptError,
	}
	if latest, _ := d.env.Store.Load(); latest.Stage == stage && (sub == checkpoint.SubstageNone || latest.Substage == sub) {
		cp.Detail = latest.Detail.Clone()
		if sub == checkpoint.SubstageNone {
			cp.Substage = latest.Substage
		}
	}
	cp.Detail = cp.Detail.With("error", cause.Error())

	if err := d.env.Store.Save(cp); err != nil {
		d.env.Logger.Error("failed to record stage failure", "stage", stage.String(), "error", err)
		return errors.Join(stageErr, err)
	}
	return stageErr
}

func (d *Driver) interrupted(stage checkpoint.Stage, err error) error {
	d.env.Logger.Warn("Ejecución interrumpida, el progreso guardado se conserva",
		"stage", stage.String(),
		"error", err)
	return err
}
