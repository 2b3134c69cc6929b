package pipeline

import (
	"context"
	"fmt"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

// StageFunc performs one stage or substage. Implementations must be
// idempotent: work whose output already exists is skipped.
type StageFunc func(ctx context.Context, env *Env) error

// Substep is one named step of a composite stage.
type Substep struct {
	Substage checkpoint.Substage
	Run      StageFunc
}

// Entry binds a stage to its implementation. Exactly one of Run or Substeps
// is set.
type Entry struct {
	Stage    checkpoint.Stage
	Run      StageFunc
	Substeps []Substep
	// Done is logged when the stage completes.
	Done string
}

// Composite reports whether the stage is made of substeps.
func (e Entry) Composite() bool {
	return len(e.Substeps) > 0
}

// Registry is the ordered list of stages the driver walks.
type Registry struct {
	entries []Entry
}

// NewRegistry validates that stages are strictly increasing and every entry
// is well-formed.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("registry has no stages")
	}
	for i, e := range entries {
		if !e.Stage.Valid() {
			return nil, fmt.Errorf("entry %d: unknown stage %d", i, int(e.Stage))
		}
		if i > 0 && e.Stage <= entries[i-1].Stage {
			return nil, fmt.Errorf("entry %d: stage %s out of order", i, e.Stage)
		}
		if (e.Run == nil) == !e.Composite() {
			return nil, fmt.Errorf("stage %s: exactly one of Run or Substeps must be set", e.Stage)
		}
		seen := make(map[checkpoint.Substage]bool, len(e.Substeps))
		for _, s := range e.Substeps {
			if s.Run == nil || s.Substage == checkpoint.SubstageNone || !s.Substage.Valid() {
				return nil, fmt.Errorf("stage %s: invalid substep %q", e.Stage, s.Substage)
			}
			if seen[s.Substage] {
				return nil, fmt.Errorf("stage %s: duplicate substep %q", e.Stage, s.Substage)
			}
			seen[s.Substage] = true
		}
	}
	return &Registry{entries: entries}, nil
}

// Entries returns the stages in execution order.
func (r *Registry) Entries() []Entry {
	return r.entries
}

// index returns the position of stage, or -1.
func (r *Registry) index(stage checkpoint.Stage) int {
	for i, e := range r.entries {
		if e.Stage == stage {
			return i
		}
	}
	return -1
}

// StartIndex is where a run resumes given the recorded checkpoint: the
// recorded stage, or the one after it when it finished.
func (r *Registry) StartIndex(cp checkpoint.Checkpoint) int {
	i := r.index(cp.Stage)
	if i < 0 {
		// Stage not registered: resume at the first later one.
		for j, e := range r.entries {
			if e.Stage > cp.Stage {
				return j
			}
		}
		return len(r.entries)
	}
	if cp.Finished() {
		return i + 1
	}
	return i
}
