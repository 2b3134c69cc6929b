package checkpoint

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cp   Checkpoint
	}{
		{"default", Default()},
		{
			name: "training substage with counters",
			cp: Checkpoint{
				Stage:        StageTraining,
				StageStatus:  StatusStarted,
				Substage:     SubstageMFTraining,
				Detail:       Counts(12, 40).With("batch", "11"),
				ScriptStatus: ScriptActive,
				RunID:        "a1b2c3d4",
				UpdatedAt:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			},
		},
		{
			name: "failed stage",
			cp: Checkpoint{
				Stage:        StageGenerateTrainingData,
				StageStatus:  StatusStarted,
				Substage:     SubstageImageGeneration,
				Detail:       Counts(3, 9).With("current_font", "Ari").With("error", "disk full"),
				ScriptStatus: ScriptError,
			},
		},
		{
			name: "finished without detail",
			cp: Checkpoint{
				Stage:        StageInstallModel,
				StageStatus:  StatusFinished,
				ScriptStatus: ScriptActive,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.cp)
			require.NoError(t, err)

			var got Checkpoint
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.cp, got)
		})
	}
}

func TestCheckpointJSONShape(t *testing.T) {
	cp := Checkpoint{
		Stage:        StageTraining,
		StageStatus:  StatusStarted,
		Substage:     SubstageGenerateTrFiles,
		Detail:       Counts(1, 2).With("current_file", "Ari_12/p0000"),
		ScriptStatus: ScriptActive,
	}
	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "TRAINING", raw["stage"])
	assert.Equal(t, "STARTED", raw["stage_status"])
	assert.Equal(t, "generate_tr_files", raw["substage"])
	assert.Equal(t, "ACTIVE", raw["script_status"])

	detail := raw["detail"].(map[string]any)
	assert.Equal(t, float64(1), detail["processed_count"])
	assert.Equal(t, float64(2), detail["total_count"])
	assert.Equal(t, "Ari_12/p0000", detail["current_file"])
	assert.NotContains(t, raw, "updated_at")
}

func TestCheckpointUnmarshalLegacy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Checkpoint
	}{
		{
			name:  "display labels",
			input: `{"stage":"Entrenamiento de Tesseract","stage_status":"Terminó","substage":null,"detail":{},"script_status":"Activo"}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusFinished,
				Detail: &Detail{}, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "flat step name implies substage",
			input: `{"stage":"RUN_MFTRAINING","stage_status":"STARTED","detail":{"processed_data":4,"total_data":10,"script_status":"ERROR"}}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusStarted, Substage: SubstageMFTraining,
				Detail: Counts(4, 10), ScriptStatus: ScriptError,
			},
		},
		{
			name:  "legacy stage name and missing script status",
			input: `{"stage":"data_generation","stage_status":"STARTED","substage":"fonts","detail":{"current_font":"Ari","font_size":12}}`,
			want: Checkpoint{
				Stage: StageGenerateTrainingData, StageStatus: StatusStarted, Substage: SubstageFonts,
				Detail: (&Detail{}).With("current_font", "Ari").With("font_size", "12"), ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "completion alias implies finished",
			input: `{"stage":"data_generated","stage_status":"FINISHED"}`,
			want: Checkpoint{
				Stage: StageGenerateTrainingData, StageStatus: StatusFinished, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "v1 training completed",
			input: `{"last_completed_stage":"training_completed","substage":null,"details":null}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusFinished, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "v1 data generated",
			input: `{"last_completed_stage":"data_generated","substage":null,"details":null}`,
			want: Checkpoint{
				Stage: StageGenerateTrainingData, StageStatus: StatusFinished, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "v1 data generation completed substage",
			input: `{"last_completed_stage":"data_generation","substage":"completed","details":null}`,
			want: Checkpoint{
				Stage: StageGenerateTrainingData, StageStatus: StatusFinished, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "v1 training step in progress",
			input: `{"last_completed_stage":"training","substage":"generate_tr_files","details":{"progress":3,"total":10}}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusStarted, Substage: SubstageGenerateTrFiles,
				Detail: (&Detail{}).With("progress", "3").With("total", "10"), ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "v1 step completion name",
			input: `{"last_completed_stage":"training","substage":"mftraining_completed","details":null}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusStarted, Substage: SubstageMFTraining, ScriptStatus: ScriptActive,
			},
		},
		{
			name:  "2.0 font properties label",
			input: `{"stage":"Generación de archivos de propiedades de fuentes","stage_status":"Empezó","detail":{"processed_data":1,"total_data":2,"script_status":"Activo"}}`,
			want: Checkpoint{
				Stage: StageTraining, StageStatus: StatusStarted, Substage: SubstageGenerateFontProperties,
				Detail: Counts(1, 2), ScriptStatus: ScriptActive,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Checkpoint
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckpointUnmarshalInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing stage", `{"stage_status":"STARTED"}`},
		{"missing stage status", `{"stage":"TRAINING"}`},
		{"unknown stage", `{"stage":"DEPLOY","stage_status":"STARTED"}`},
		{"unknown status", `{"stage":"TRAINING","stage_status":"PAUSED"}`},
		{"unknown substage", `{"stage":"TRAINING","stage_status":"STARTED","substage":"lstm"}`},
		{"unknown script status", `{"stage":"TRAINING","stage_status":"STARTED","script_status":"SLEEPING"}`},
		{"processed beyond total", `{"stage":"TRAINING","stage_status":"STARTED","detail":{"processed_count":5,"total_count":4}}`},
		{"non-integer count", `{"stage":"TRAINING","stage_status":"STARTED","detail":{"processed_count":"many"}}`},
		{"substage outside stage", `{"stage":"GENERATE_TRAINING_DATA","stage_status":"STARTED","substage":"rename_files"}`},
		{"substage on install", `{"stage":"INSTALL_MODEL","stage_status":"STARTED","substage":"fonts"}`},
		{"unknown v1 stage", `{"last_completed_stage":"unknown","substage":null,"details":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Checkpoint
			err := json.Unmarshal([]byte(tt.input), &got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestDetailPercent(t *testing.T) {
	zero := 0
	tests := []struct {
		name   string
		detail *Detail
		want   float64
	}{
		{"nil detail", nil, 0},
		{"no counters", &Detail{}, 0},
		{"missing total", &Detail{ProcessedCount: &zero}, 0},
		{"zero total", Counts(0, 0), 0},
		{"half", Counts(5, 10), 50},
		{"complete", Counts(7, 7), 100},
		{"rounded", Counts(1, 3), 33.33},
		{"rounded up", Counts(2, 3), 66.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.detail.Percent())
		})
	}
}

func TestStageOrdering(t *testing.T) {
	stages := Stages()
	for i := 1; i < len(stages); i++ {
		assert.Less(t, stages[i-1], stages[i])
	}

	subs := TrainingSubstages()
	assert.Len(t, subs, 8)
	assert.Equal(t, SubstageProcessUnicharset, subs[0])
	assert.Equal(t, SubstageCombineTrainingData, subs[len(subs)-1])
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		input   string
		stage   Stage
		sub     Substage
		wantErr bool
	}{
		{"GENERATE_TRAINING_DATA", StageGenerateTrainingData, SubstageNone, false},
		{"Generación de datos de entrenamiento", StageGenerateTrainingData, SubstageNone, false},
		{"start", StageGenerateTrainingData, SubstageNone, false},
		{"training", StageTraining, SubstageNone, false},
		{"data_generated", StageGenerateTrainingData, SubstageNone, false},
		{"training_completed", StageTraining, SubstageNone, false},
		{"Generación de archivos de propiedades de fuentes", StageTraining, SubstageGenerateFontProperties, false},
		{"CREATE_TR_FILES", StageTraining, SubstageGenerateTrFiles, false},
		{"Ejecución de cntraining", StageTraining, SubstageCNTraining, false},
		{"INSTALL_MODEL", StageInstallModel, SubstageNone, false},
		{"nope", 0, SubstageNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			stage, sub, err := ParseStage(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.stage, stage)
			assert.Equal(t, tt.sub, sub)
		})
	}
}

func TestValidateSubstageMembership(t *testing.T) {
	for _, stage := range Stages() {
		for _, sub := range stage.Substages() {
			cp := Checkpoint{Stage: stage, StageStatus: StatusStarted, Substage: sub, ScriptStatus: ScriptActive}
			assert.NoError(t, cp.Validate(), "%s/%s", stage, sub)
		}
	}

	cp := Checkpoint{Stage: StageGenerateTrainingData, StageStatus: StatusStarted, Substage: SubstageRenameFiles, ScriptStatus: ScriptActive}
	assert.ErrorIs(t, cp.Validate(), ErrInvalid)

	cp = Checkpoint{Stage: StageTraining, StageStatus: StatusStarted, Substage: SubstageFonts, ScriptStatus: ScriptActive}
	assert.ErrorIs(t, cp.Validate(), ErrInvalid)
}
