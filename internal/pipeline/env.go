// Package pipeline runs the fixed stage sequence with checkpoint/resume.
package pipeline

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/toolchain"
)

// Env is everything a stage needs for one run. It is created once at process
// start and passed explicitly to every stage.
type Env struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *checkpoint.Store
	Tools   toolchain.Runner
	Metrics *metrics.Collector
	RunID   string

	closers []func() error
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewEnv assembles an Env. The logger is tagged with the run id and the store
// stamps it on every checkpoint it saves.
func NewEnv(cfg *config.Config, logger *slog.Logger, store *checkpoint.Store, tools toolchain.Runner, m *metrics.Collector, runID string) *Env {
	if m == nil {
		m = metrics.NewCollector()
	}
	if store != nil {
		store.SetRunID(runID)
	}
	return &Env{
		Config:  cfg,
		Logger:  logger.With("run_id", runID),
		Store:   store,
		Tools:   tools,
		Metrics: m,
		RunID:   runID,
	}
}

// OnClose registers a function run by Close, in reverse order.
func (e *Env) OnClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close flushes and closes resources registered with OnClose.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}
