package checkpoint

import "time"

// Step is one entry of the flattened pipeline: a stage, or a TRAINING
// substage.
type Step struct {
	Stage    Stage
	Substage Substage
}

// Label returns the display label of the step.
func (s Step) Label() string {
	if s.Substage != SubstageNone {
		return s.Substage.Label()
	}
	return s.Stage.Label()
}

// Steps returns the flattened pipeline in execution order.
func Steps() []Step {
	steps := []Step{{Stage: StageGenerateTrainingData}}
	for _, sub := range trainingSubstages {
		steps = append(steps, Step{Stage: StageTraining, Substage: sub})
	}
	return append(steps, Step{Stage: StageInstallModel})
}

// position returns the index of the checkpoint within Steps().
func position(cp Checkpoint) int {
	steps := Steps()
	first, last := -1, -1
	for i, st := range steps {
		if st.Stage != cp.Stage {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		if cp.Substage != SubstageNone && st.Substage == cp.Substage {
			return i
		}
	}
	if cp.Finished() {
		return last
	}
	return first
}

// View is the read-only projection served by the dashboard.
type View struct {
	Available       bool              `json:"available"`
	CurrentStage    string            `json:"current_stage"`
	StageKey        string            `json:"stage_key"`
	StageStatus     string            `json:"stage_status"`
	Substage        string            `json:"substage"`
	ScriptStatus    string            `json:"script_status"`
	CompletedStages []string          `json:"completed_stages"`
	PendingStages   []string          `json:"pending_stages"`
	Percentage      float64           `json:"percentage"`
	ProcessedCount  *int              `json:"processed_count"`
	TotalCount      *int              `json:"total_count"`
	Details         map[string]string `json:"details"`
	RunID           string            `json:"run_id,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// NewView derives the dashboard view of cp.
func NewView(cp Checkpoint) View {
	steps := Steps()
	pos := position(cp)

	completed := make([]string, 0, len(steps))
	pending := make([]string, 0, len(steps))
	for i, st := range steps {
		switch {
		case i < pos, i == pos && cp.Finished():
			completed = append(completed, st.Label())
		case i > pos:
			pending = append(pending, st.Label())
		}
	}

	v := View{
		Available:       true,
		CurrentStage:    cp.Stage.Label(),
		StageKey:        cp.Stage.String(),
		StageStatus:     cp.StageStatus.Label(),
		Substage:        cp.Substage.Label(),
		ScriptStatus:    cp.ScriptStatus.Label(),
		CompletedStages: completed,
		PendingStages:   pending,
		Percentage:      cp.Detail.Percent(),
		Details:         map[string]string{},
		RunID:           cp.RunID,
	}
	if cp.Detail != nil {
		v.ProcessedCount = cp.Detail.ProcessedCount
		v.TotalCount = cp.Detail.TotalCount
		for k, val := range cp.Detail.Context {
			v.Details[k] = val
		}
	}
	if !cp.UpdatedAt.IsZero() {
		t := cp.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

// NotStartedView is served when no progress file exists yet.
func NotStartedView() View {
	pending := make([]string, 0, len(Steps()))
	for _, st := range Steps() {
		pending = append(pending, st.Label())
	}
	return View{
		CurrentStage:    "Sin iniciar",
		CompletedStages: []string{},
		PendingStages:   pending,
		Details:         map[string]string{},
	}
}
