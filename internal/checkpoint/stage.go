package checkpoint

import (
	"fmt"
	"strings"
)

// Stage is a top-level pipeline phase. Stages are totally ordered by their
// integer value.
type Stage int

const (
	StageGenerateTrainingData Stage = iota
	StageTraining
	StageInstallModel
)

var stageKeys = [...]string{
	StageGenerateTrainingData: "GENERATE_TRAINING_DATA",
	StageTraining:             "TRAINING",
	StageInstallModel:         "INSTALL_MODEL",
}

var stageLabels = [...]string{
	StageGenerateTrainingData: "Generación de datos de entrenamiento",
	StageTraining:             "Entrenamiento de Tesseract",
	StageInstallModel:         "Instalación del modelo",
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageGenerateTrainingData, StageTraining, StageInstallModel}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s >= StageGenerateTrainingData && s <= StageInstallModel
}

// String returns the canonical key written to the progress file.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageKeys[s]
}

// Label returns the display label.
func (s Stage) Label() string {
	if !s.Valid() {
		return s.String()
	}
	return stageLabels[s]
}

// legacyStages maps stage names written by earlier versions of the tool.
var legacyStages = map[string]Stage{
	"start":           StageGenerateTrainingData,
	"data_generation": StageGenerateTrainingData,
	"training":        StageTraining,
}

// legacySteps maps the flat per-step stage names of the 2.0 tracker onto
// TRAINING plus the substage they stood for.
var legacySteps = map[string]Substage{
	"PROCESS_UNICHARSET":       SubstageProcessUnicharset,
	"GENERATE_FONT_PROPERTIES": SubstageGenerateFontProperties,
	"CREATE_TR_FILES":          SubstageGenerateTrFiles,
	"RUN_SHAPECLUSTERING":      SubstageShapeClustering,
	"RUN_MFTRAINING":           SubstageMFTraining,
	"RUN_CNTRAINING":           SubstageCNTraining,
	"RENAME_FILES":             SubstageRenameFiles,
	"COMBINE_TRAINING_DATA":    SubstageCombineTrainingData,
}

// finishedStages are v1 names that record a stage as already completed.
var finishedStages = map[string]Stage{
	"data_generated":     StageGenerateTrainingData,
	"training_completed": StageTraining,
}

// ParseStage accepts a canonical key, a display label or a legacy name. Legacy
// per-step names imply a TRAINING substage, returned as the second value.
func ParseStage(v string) (Stage, Substage, error) {
	ref, err := parseStageRef(v)
	return ref.stage, ref.substage, err
}

type stageRef struct {
	stage    Stage
	substage Substage
	finished bool // the name itself says the stage completed
}

func parseStageRef(v string) (stageRef, error) {
	v = strings.TrimSpace(v)
	for _, s := range Stages() {
		if v == stageKeys[s] || v == stageLabels[s] {
			return stageRef{stage: s}, nil
		}
	}
	if s, ok := legacyStages[v]; ok {
		return stageRef{stage: s}, nil
	}
	if s, ok := finishedStages[v]; ok {
		return stageRef{stage: s, finished: true}, nil
	}
	if sub, ok := legacySteps[v]; ok {
		return stageRef{stage: StageTraining, substage: sub}, nil
	}
	for _, sub := range trainingSubstages {
		if v == substageLabels[sub] {
			return stageRef{stage: StageTraining, substage: sub}, nil
		}
	}
	return stageRef{}, fmt.Errorf("%w: unknown stage %q", ErrInvalid, v)
}

// v1Substages maps the substage values of v1 progress files. Most name the
// step that just completed; the driver reruns it and its outputs are skipped.
var v1Substages = map[string]Substage{
	"generate_training_data":          SubstageImageGeneration,
	"unicharset_combined_and_cleaned": SubstageProcessUnicharset,
	"font_properties_generated":       SubstageGenerateFontProperties,
	"tr_files_generated":              SubstageGenerateTrFiles,
	"shapeclustering_completed":       SubstageShapeClustering,
	"mftraining_completed":            SubstageMFTraining,
	"cntraining_completed":            SubstageCNTraining,
	"combining_data":                  SubstageCombineTrainingData,
}

// Substages returns the substages that may be recorded under s.
func (s Stage) Substages() []Substage {
	switch s {
	case StageGenerateTrainingData:
		return []Substage{SubstageFonts, SubstageImageGeneration}
	case StageTraining:
		return TrainingSubstages()
	}
	return nil
}

// Substage is a named step within a stage. The empty value means none.
type Substage string

const (
	SubstageNone Substage = ""

	// Informational substages of GENERATE_TRAINING_DATA.
	SubstageFonts           Substage = "fonts"
	SubstageImageGeneration Substage = "image_generation"

	// TRAINING substages, in execution order.
	SubstageProcessUnicharset      Substage = "process_unicharset"
	SubstageGenerateFontProperties Substage = "generate_font_properties"
	SubstageGenerateTrFiles        Substage = "generate_tr_files"
	SubstageShapeClustering        Substage = "complete_shapeclustering"
	SubstageMFTraining             Substage = "run_mftraining"
	SubstageCNTraining             Substage = "run_cntraining"
	SubstageRenameFiles            Substage = "rename_files"
	SubstageCombineTrainingData    Substage = "combine_training_data"
)

var trainingSubstages = []Substage{
	SubstageProcessUnicharset,
	SubstageGenerateFontProperties,
	SubstageGenerateTrFiles,
	SubstageShapeClustering,
	SubstageMFTraining,
	SubstageCNTraining,
	SubstageRenameFiles,
	SubstageCombineTrainingData,
}

var substageLabels = map[Substage]string{
	SubstageFonts:                  "Fuentes",
	SubstageImageGeneration:        "Generación de imágenes",
	SubstageProcessUnicharset:      "Procesamiento de unicharset",
	SubstageGenerateFontProperties: "Generación de archivos de propiedades de fuentes",
	SubstageGenerateTrFiles:        "Creación de archivos .tr",
	SubstageShapeClustering:        "Ejecución de shapeclustering",
	SubstageMFTraining:             "Ejecución de mftraining",
	SubstageCNTraining:             "Ejecución de cntraining",
	SubstageRenameFiles:            "Renombrado de archivos",
	SubstageCombineTrainingData:    "Combinación de datos de entrenamiento",
}

// TrainingSubstages returns the TRAINING substages in execution order.
func TrainingSubstages() []Substage {
	out := make([]Substage, len(trainingSubstages))
	copy(out, trainingSubstages)
	return out
}

// Valid reports whether s is empty or a known substage.
func (s Substage) Valid() bool {
	if s == SubstageNone {
		return true
	}
	_, ok := substageLabels[s]
	return ok
}

// Label returns the display label, or the raw value if unknown.
func (s Substage) Label() string {
	if l, ok := substageLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseSubstage accepts a canonical key, a display label or a legacy step name.
func ParseSubstage(v string) (Substage, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return SubstageNone, nil
	}
	for sub, label := range substageLabels {
		if v == string(sub) || v == label {
			return sub, nil
		}
	}
	if sub, ok := legacySteps[v]; ok {
		return sub, nil
	}
	return SubstageNone, fmt.Errorf("%w: unknown substage %q", ErrInvalid, v)
}

// StageStatus is whether the recorded stage has begun or completed.
type StageStatus string

const (
	StatusStarted  StageStatus = "STARTED"
	StatusFinished StageStatus = "FINISHED"
)

// Label returns the display label.
func (s StageStatus) Label() string {
	switch s {
	case StatusStarted:
		return "Empezó"
	case StatusFinished:
		return "Terminó"
	}
	return string(s)
}

// ParseStageStatus accepts a canonical key or a display label.
func ParseStageStatus(v string) (StageStatus, error) {
	switch strings.TrimSpace(v) {
	case string(StatusStarted), StatusStarted.Label():
		return StatusStarted, nil
	case string(StatusFinished), StatusFinished.Label():
		return StatusFinished, nil
	}
	return "", fmt.Errorf("%w: unknown stage status %q", ErrInvalid, v)
}

// ScriptStatus is the health of the run as a whole.
type ScriptStatus string

const (
	ScriptActive ScriptStatus = "ACTIVE"
	ScriptError  ScriptStatus = "ERROR"
)

// Label returns the display label.
func (s ScriptStatus) Label() string {
	switch s {
	case ScriptActive:
		return "Activo"
	case ScriptError:
		return "Error"
	}
	return string(s)
}

// ParseScriptStatus accepts a canonical key or a display label. Empty means
// ACTIVE.
func ParseScriptStatus(v string) (ScriptStatus, error) {
	switch strings.TrimSpace(v) {
	case "", string(ScriptActive), ScriptActive.Label():
		return ScriptActive, nil
	case string(ScriptError), ScriptError.Label():
		return ScriptError, nil
	}
	return "", fmt.Errorf("%w: unknown script status %q", ErrInvalid, v)
}
