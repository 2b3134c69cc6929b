package pipeline

import (
	"fmt"
	"time"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

// Tracker records per-unit progress of a stage or substage. Every Step saves a
// STARTED checkpoint carrying processed/total and logs the rate.
type Tracker struct {
	env       *Env
	stage     checkpoint.Stage
	substage  checkpoint.Substage
	total     int
	processed int
	done      int
	start     time.Time
	now       func() time.Time
}

// Track starts progress tracking for total units of work.
func (e *Env) Track(stage checkpoint.Stage, substage checkpoint.Substage, total int) *Tracker {
	return &Tracker{
		env:      e,
		stage:    stage,
		substage: substage,
		total:    max(total, 0),
		start:    time.Now(),
		now:      time.Now,
	}
}

// Processed returns the number of units accounted for so far.
func (t *Tracker) Processed() int {
	return t.processed
}

// Total returns the number of units of work.
func (t *Tracker) Total() int {
	return t.total
}

// Skip accounts for a unit whose output already exists. It does not save;
// the next Step records the count.
func (t *Tracker) Skip() {
	if t.processed < t.total {
		t.processed++
	}
}

// Step marks one unit complete, saves the checkpoint and logs progress.
func (t *Tracker) Step(context map[string]string) error {
	if t.processed < t.total {
		t.processed++
	}
	t.done++
	return t.save(context)
}

// Finish marks all units complete and saves.
func (t *Tracker) Finish(context map[string]string) error {
	t.processed = t.total
	return t.save(context)
}

func (t *Tracker) save(context map[string]string) error {
	detail := checkpoint.Counts(t.processed, t.total)
	for k, v := range context {
		detail.With(k, v)
	}
	cp := checkpoint.Checkpoint{
		Stage:        t.stage,
		StageStatus:  checkpoint.StatusStarted,
		Substage:     t.substage,
		Detail:       detail,
		ScriptStatus: checkpoint.ScriptActive,
	}
	if err := t.env.Store.Save(cp); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	t.log()
	return nil
}

func (t *Tracker) log() {
	elapsed := t.now().Sub(t.start)
	var remaining time.Duration
	if t.done > 0 {
		perUnit := elapsed / time.Duration(t.done)
		remaining = perUnit * time.Duration(t.total-t.processed)
	}
	t.env.Logger.Info(fmt.Sprintf("Progreso: %d/%d (%.2f%%) - Tiempo transcurrido: %s - Tiempo estimado restante: %s",
		t.processed, t.total, checkpoint.Counts(t.processed, t.total).Percent(),
		elapsed.Round(time.Second), remaining.Round(time.Second)),
		"stage", t.stage.String(),
		"substage", string(t.substage))
}
