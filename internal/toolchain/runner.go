// Package toolchain runs the external Tesseract training binaries.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
)

// Runner executes a named tool with arguments.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) (Result, error)
}

// Result is the captured output of a successful invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ToolError is returned when a tool cannot be started or exits non-zero.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := outputTail(e.Stderr)
	if msg == "" {
		msg = outputTail(e.Stdout)
	}
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExecRunner runs tools as child processes.
type ExecRunner struct {
	// BinDir is prepended to tool names when set; otherwise PATH is searched.
	BinDir  string
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// NewExecRunner creates a runner. A nil logger discards output.
func NewExecRunner(binDir string, logger *slog.Logger, m *metrics.Collector) *ExecRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecRunner{BinDir: binDir, Logger: logger, Metrics: m}
}

// Run executes tool and waits for it. A non-zero exit yields *ToolError with
// the captured output.
func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) (Result, error) {
	path := tool
	if r.BinDir != "" {
		path = filepath.Join(r.BinDir, tool)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Debug("running tool", "tool", tool, "args", len(args))
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if r.Metrics != nil {
		r.Metrics.RecordTiming(metrics.ToolOp(tool), duration)
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: duration}
	if err == nil {
		r.Logger.Debug("tool completed",
			"tool", tool,
			"duration_ms", duration.Milliseconds(),
			"stdout", res.Stdout)
		return res, nil
	}

	toolErr := &ToolError{
		Tool:     tool,
		Args:     args,
		ExitCode: -1,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = ctxErr
	}

	r.Logger.Error("tool failed",
		"tool", tool,
		"exit_code", toolErr.ExitCode,
		"stdout", res.Stdout,
		"stderr", res.Stderr,
		"error", err)
	return res, toolErr
}

// Limits for the output quoted in ToolError messages, which end up in the
// progress file's detail.error.
const (
	maxTailLines = 5
	maxTailBytes = 512
)

// outputTail returns the last non-empty lines of s joined with " | ",
// keeping at most maxTailBytes from the end.
func outputTail(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > maxTailLines {
		lines = lines[len(lines)-maxTailLines:]
	}
	out := strings.Join(lines, " | ")
	if len(out) > maxTailBytes {
		cut := len(out) - maxTailBytes
		for cut < len(out) && !utf8.RuneStart(out[cut]) {
			cut++
		}
		out = "..." + out[cut:]
	}
	return out
}
