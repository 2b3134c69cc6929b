// Package inference reconstructs an approximate checkpoint from the tail of
// the execution log. It only reads; the progress store decides whether to use
// the result.
package inference

import (
	"encoding/json"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

// DefaultWindow is the number of trailing log lines inspected.
const DefaultWindow = 6

// Inference is the state implied by the newest recognised log line.
type Inference struct {
	Stage    checkpoint.Stage
	Substage checkpoint.Substage
	Finished bool
	// Detail is nil when the marker carried no parameters or they were
	// malformed.
	Detail map[string]string
	// Line is the log line that matched.
	Line string
}

// Checkpoint converts the inference into a checkpoint with an ACTIVE script
// status.
func (i Inference) Checkpoint() checkpoint.Checkpoint {
	cp := checkpoint.Checkpoint{
		Stage:        i.Stage,
		StageStatus:  checkpoint.StatusStarted,
		Substage:     i.Substage,
		ScriptStatus: checkpoint.ScriptActive,
	}
	if i.Finished {
		cp.StageStatus = checkpoint.StatusFinished
	}
	if len(i.Detail) > 0 {
		cp.Detail = &checkpoint.Detail{Context: maps.Clone(i.Detail)}
	}
	return cp
}

type rule struct {
	phrase   string
	stage    checkpoint.Stage
	substage checkpoint.Substage
	finished bool
	params   func(rest string) map[string]string
}

var rules = []rule{
	{phrase: MarkerDataGenerated, stage: checkpoint.StageGenerateTrainingData, finished: true},
	{phrase: MarkerFont, stage: checkpoint.StageGenerateTrainingData, substage: checkpoint.SubstageFonts, params: fontParams},
	{phrase: MarkerImage, stage: checkpoint.StageGenerateTrainingData, substage: checkpoint.SubstageImageGeneration, params: imageParams},
	{phrase: MarkerUnicharset, stage: checkpoint.StageTraining, substage: checkpoint.SubstageProcessUnicharset, params: batchParams},
	{phrase: MarkerFontProperties, stage: checkpoint.StageTraining, substage: checkpoint.SubstageGenerateFontProperties},
	{phrase: MarkerTrFile, stage: checkpoint.StageTraining, substage: checkpoint.SubstageGenerateTrFiles, params: fileParams},
	{phrase: MarkerShapeClustering, stage: checkpoint.StageTraining, substage: checkpoint.SubstageShapeClustering, params: batchParams},
	{phrase: MarkerMFTraining, stage: checkpoint.StageTraining, substage: checkpoint.SubstageMFTraining, params: batchParams},
	{phrase: MarkerCNTraining, stage: checkpoint.StageTraining, substage: checkpoint.SubstageCNTraining},
	{phrase: MarkerRenaming, stage: checkpoint.StageTraining, substage: checkpoint.SubstageRenameFiles},
	{phrase: MarkerCombining, stage: checkpoint.StageTraining, substage: checkpoint.SubstageCombineTrainingData},
	{phrase: MarkerTrainingDone, stage: checkpoint.StageTraining, finished: true},
	{phrase: MarkerInstalling, stage: checkpoint.StageInstallModel, params: modelParams},
	{phrase: MarkerInstalled, stage: checkpoint.StageInstallModel, finished: true},
}

// Infer scans lines newest first and returns the state implied by the first
// line whose message contains a marker phrase.
func Infer(lines []string) (Inference, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		msg := Message(lines[i])
		for _, r := range rules {
			idx := strings.Index(msg, r.phrase)
			if idx < 0 {
				continue
			}
			inf := Inference{
				Stage:    r.stage,
				Substage: r.substage,
				Finished: r.finished,
				Line:     lines[i],
			}
			if r.params != nil {
				inf.Detail = r.params(msg[idx+len(r.phrase):])
			}
			return inf, true
		}
	}
	return Inference{}, false
}

// FromLogs returns a checkpoint fallback that reads the last window lines of
// each path in order and uses the first one with evidence.
func FromLogs(window int, logger *slog.Logger, paths ...string) checkpoint.Fallback {
	if window <= 0 {
		window = DefaultWindow
	}
	return func() (checkpoint.Checkpoint, bool) {
		for _, path := range paths {
			lines, err := ReadTail(path, window)
			if err != nil {
				logger.Warn("cannot read log tail", "path", path, "error", err)
				continue
			}
			inf, ok := Infer(lines)
			if !ok {
				continue
			}
			logger.Info("progress inferred from log",
				"path", path,
				"stage", inf.Stage.String(),
				"substage", string(inf.Substage),
				"finished", inf.Finished)
			return inf.Checkpoint(), true
		}
		return checkpoint.Checkpoint{}, false
	}
}

var levels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// Message extracts the message text of a log line written by slog (text or
// JSON) or by the older "time - LEVEL - message" format. Anything else is
// returned unchanged.
func Message(line string) string {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "{") {
		var rec struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal([]byte(trimmed), &rec); err == nil && rec.Msg != "" {
			return rec.Msg
		}
	}

	if i := strings.Index(line, "msg="); i >= 0 && (i == 0 || line[i-1] == ' ') {
		rest := line[i+len("msg="):]
		if strings.HasPrefix(rest, `"`) {
			if q, err := strconv.QuotedPrefix(rest); err == nil {
				if s, err := strconv.Unquote(q); err == nil {
					return s
				}
			}
			return rest
		}
		if j := strings.IndexByte(rest, ' '); j >= 0 {
			return rest[:j]
		}
		return rest
	}

	parts := strings.Split(line, " - ")
	for i := 1; i < len(parts)-1; i++ {
		if levels[strings.TrimSpace(parts[i])] {
			return strings.Join(parts[i+1:], " - ")
		}
	}
	return line
}

func fontParams(rest string) map[string]string {
	font := strings.TrimSpace(rest)
	if font == "" {
		return nil
	}
	return map[string]string{"current_font": font}
}

var imagePattern = regexp.MustCompile(`^\s*(\S+)\s+-\s+tamaño\s+(\d+)\s+-\s+bloque\s+(\d+)`)

func imageParams(rest string) map[string]string {
	m := imagePattern.FindStringSubmatch(rest)
	if m == nil {
		return nil
	}
	return map[string]string{"current_font": m[1], "font_size": m[2], "block": m[3]}
}

var batchPattern = regexp.MustCompile(`lote\s+(\d+)`)

func batchParams(rest string) map[string]string {
	m := batchPattern.FindStringSubmatch(rest)
	if m == nil {
		return nil
	}
	return map[string]string{"batch": m[1]}
}

func fileParams(rest string) map[string]string {
	file := strings.TrimSpace(rest)
	if file == "" {
		return nil
	}
	return map[string]string{"current_file": file}
}

func modelParams(rest string) map[string]string {
	model := strings.TrimSpace(rest)
	if model == "" {
		return nil
	}
	return map[string]string{"model": model}
}
