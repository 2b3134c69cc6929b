// Package procwatch finds running pipeline processes.
package procwatch

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Process is a running pipeline invocation.
type Process struct {
	PID     int32
	Cmdline []string
	Started time.Time
	RSS     uint64
	CPU     float64
}

// Command is the subcommand that writes the progress file.
const Command = "run"

// IsPipelineCommand reports whether args is an invocation of the binary named
// exe running the pipeline subcommand. Flags before the subcommand are
// ignored; a ".exe" suffix is not significant.
func IsPipelineCommand(args []string, exe string) bool {
	if len(args) < 2 || exe == "" {
		return false
	}
	if binName(args[0]) != binName(exe) {
		return false
	}
	for i := 1; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return false
		}
		if strings.HasPrefix(a, "-") {
			// --config takes a separate value.
			if (a == "--config" || a == "-c") && i+1 < len(args) {
				i++
			}
			continue
		}
		return a == Command
	}
	return false
}

func binName(path string) string {
	base := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	return strings.TrimSuffix(strings.ToLower(base), ".exe")
}

// Find lists pipeline processes other than the current one. exe is the binary
// name to look for; empty means the current executable.
func Find(ctx context.Context, exe string) ([]Process, error) {
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := int32(os.Getpid())
	var found []Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !IsPipelineCommand(args, exe) {
			continue
		}

		proc := Process{PID: p.Pid, Cmdline: args}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			proc.Started = time.UnixMilli(ms)
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			proc.RSS = mem.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			proc.CPU = cpu
		}
		found = append(found, proc)
	}
	slices.SortFunc(found, func(a, b Process) int { return cmp.Compare(a.PID, b.PID) })
	return found, nil
}
