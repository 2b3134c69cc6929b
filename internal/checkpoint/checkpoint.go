// Package checkpoint defines the pipeline's resume state: the stage
// vocabulary, the Checkpoint snapshot and its JSON form, the progress store
// that persists it and the view the dashboard derives from it.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Checkpoint is the single live snapshot of where the pipeline is.
type Checkpoint struct {
	Stage        Stage
	StageStatus  StageStatus
	Substage     Substage
	Detail       *Detail
	ScriptStatus ScriptStatus
	RunID        string
	UpdatedAt    time.Time
}

// Default is the checkpoint used when neither a progress file nor log
// evidence exists.
func Default() Checkpoint {
	return Checkpoint{
		Stage:        StageGenerateTrainingData,
		StageStatus:  StatusStarted,
		ScriptStatus: ScriptActive,
	}
}

// Finished reports whether the recorded stage completed.
func (c Checkpoint) Finished() bool {
	return c.StageStatus == StatusFinished
}

// Validate checks enum values and detail counts.
func (c Checkpoint) Validate() error {
	if !c.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %d", ErrInvalid, int(c.Stage))
	}
	if c.StageStatus != StatusStarted && c.StageStatus != StatusFinished {
		return fmt.Errorf("%w: unknown stage status %q", ErrInvalid, c.StageStatus)
	}
	if !c.Substage.Valid() {
		return fmt.Errorf("%w: unknown substage %q", ErrInvalid, c.Substage)
	}
	if c.Substage != SubstageNone && !slices.Contains(c.Stage.Substages(), c.Substage) {
		return fmt.Errorf("%w: substage %q does not belong to stage %s", ErrInvalid, c.Substage, c.Stage)
	}
	if c.ScriptStatus != ScriptActive && c.ScriptStatus != ScriptError {
		return fmt.Errorf("%w: unknown script status %q", ErrInvalid, c.ScriptStatus)
	}
	return c.Detail.validate()
}

type wireCheckpoint struct {
	Stage        string    `json:"stage"`
	StageStatus  string    `json:"stage_status"`
	Substage     *string   `json:"substage"`
	Detail       *Detail   `json:"detail"`
	ScriptStatus string    `json:"script_status,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// v1Checkpoint holds the keys of progress files written before stage_status
// existed.
type v1Checkpoint struct {
	LastCompletedStage string  `json:"last_completed_stage"`
	Details            *Detail `json:"details"`
}

// MarshalJSON writes canonical keys.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	w := wireCheckpoint{
		Stage:        c.Stage.String(),
		StageStatus:  string(c.StageStatus),
		Detail:       c.Detail,
		ScriptStatus: string(c.ScriptStatus),
		RunID:        c.RunID,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.Substage != SubstageNone {
		s := string(c.Substage)
		w.Substage = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts canonical keys, display labels and legacy names.
// stage and stage_status are required; script_status defaults to ACTIVE.
// v1 records (last_completed_stage, details) carry no stage_status: it is
// FINISHED for completion names and STARTED otherwise.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var w wireCheckpoint
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var v1 v1Checkpoint
	if w.Stage == "" {
		if err := json.Unmarshal(data, &v1); err != nil {
			return err
		}
		w.Stage = v1.LastCompletedStage
		if w.Detail == nil {
			w.Detail = v1.Details
		}
	}
	legacy := v1.LastCompletedStage != ""

	if w.Stage == "" {
		return fmt.Errorf("%w: missing stage", ErrInvalid)
	}
	ref, err := parseStageRef(w.Stage)
	if err != nil {
		return err
	}

	sub := ref.substage
	finished := ref.finished
	if w.Substage != nil && *w.Substage != "" {
		raw := strings.TrimSpace(*w.Substage)
		switch {
		case legacy && raw == "completed":
			finished = true
		case legacy && v1Substages[raw] != SubstageNone:
			sub = v1Substages[raw]
		default:
			if sub, err = ParseSubstage(raw); err != nil {
				return err
			}
		}
	}

	var status StageStatus
	switch {
	case finished:
		status = StatusFinished
	case w.StageStatus != "":
		if status, err = ParseStageStatus(w.StageStatus); err != nil {
			return err
		}
	case legacy:
		status = StatusStarted
	default:
		return fmt.Errorf("%w: missing stage_status", ErrInvalid)
	}

	// The 2.0 tracker kept script_status inside detail.
	rawScript := w.ScriptStatus
	if rawScript == "" && w.Detail != nil {
		if v, ok := w.Detail.Context["script_status"]; ok {
			rawScript = v
			delete(w.Detail.Context, "script_status")
			if len(w.Detail.Context) == 0 {
				w.Detail.Context = nil
			}
		}
	}
	script, err := ParseScriptStatus(rawScript)
	if err != nil {
		return err
	}

	*c = Checkpoint{
		Stage:        ref.stage,
		StageStatus:  status,
		Substage:     sub,
		Detail:       w.Detail,
		ScriptStatus: script,
		RunID:        w.RunID,
		UpdatedAt:    w.UpdatedAt,
	}
	return c.Validate()
}

// Detail carries progress counters and free-form string context such as
// current_font, batch or error. Context keys are flattened into the JSON
// object next to the counters.
type Detail struct {
	ProcessedCount *int
	TotalCount     *int
	Context        map[string]string
}

// Counts returns a detail with both counters set.
func Counts(processed, total int) *Detail {
	return &Detail{ProcessedCount: &processed, TotalCount: &total}
}

// With sets a context key and returns d. A nil receiver allocates.
func (d *Detail) With(key, value string) *Detail {
	if d == nil {
		d = &Detail{}
	}
	if d.Context == nil {
		d.Context = make(map[string]string)
	}
	d.Context[key] = value
	return d
}

// Get returns a context value or "".
func (d *Detail) Get(key string) string {
	if d == nil {
		return ""
	}
	return d.Context[key]
}

// ErrorMessage returns the recorded failure message, if any.
func (d *Detail) ErrorMessage() string {
	return d.Get("error")
}

// Clone returns a deep copy.
func (d *Detail) Clone() *Detail {
	if d == nil {
		return nil
	}
	out := &Detail{Context: maps.Clone(d.Context)}
	if d.ProcessedCount != nil {
		v := *d.ProcessedCount
		out.ProcessedCount = &v
	}
	if d.TotalCount != nil {
		v := *d.TotalCount
		out.TotalCount = &v
	}
	return out
}

// Percent is processed/total*100 rounded to two decimals; 0 when either
// counter is absent or total is zero.
func (d *Detail) Percent() float64 {
	if d == nil || d.ProcessedCount == nil || d.TotalCount == nil || *d.TotalCount <= 0 {
		return 0
	}
	p := float64(*d.ProcessedCount) / float64(*d.TotalCount) * 100
	return math.Round(p*100) / 100
}

func (d *Detail) validate() error {
	if d == nil {
		return nil
	}
	if d.ProcessedCount != nil && *d.ProcessedCount < 0 {
		return fmt.Errorf("%w: negative processed_count", ErrInvalid)
	}
	if d.TotalCount != nil && *d.TotalCount < 0 {
		return fmt.Errorf("%w: negative total_count", ErrInvalid)
	}
	if d.ProcessedCount != nil && d.TotalCount != nil && *d.ProcessedCount > *d.TotalCount {
		return fmt.Errorf("%w: processed_count %d exceeds total_count %d", ErrInvalid, *d.ProcessedCount, *d.TotalCount)
	}
	return nil
}

// MarshalJSON flattens context keys next to the counters.
func (d *Detail) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(d.Context)+2)
	for k, v := range d.Context {
		out[k] = v
	}
	if d.ProcessedCount != nil {
		out["processed_count"] = *d.ProcessedCount
	}
	if d.TotalCount != nil {
		out["total_count"] = *d.TotalCount
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads processed_count/total_count (or the older
// processed_data/total_data) and keeps every other key as a string.
func (d *Detail) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Detail
	for k, v := range raw {
		switch k {
		case "processed_count", "processed_data":
			n, err := decodeCount(k, v)
			if err != nil {
				return err
			}
			out.ProcessedCount = n
		case "total_count", "total_data":
			n, err := decodeCount(k, v)
			if err != nil {
				return err
			}
			out.TotalCount = n
		default:
			s, ok := decodeString(v)
			if !ok {
				continue
			}
			out.With(k, s)
		}
	}
	*d = out
	return nil
}

func decodeCount(key string, v json.RawMessage) (*int, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, nil
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err != nil {
		return nil, fmt.Errorf("%w: %s is not a number", ErrInvalid, key)
	}
	n, err := strconv.Atoi(num.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not an integer", ErrInvalid, key)
	}
	return &n, nil
}

func decodeString(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if bytes.Equal(v, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	return string(v), true
}
