package procwatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPipelineCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		exe  string
		want bool
	}{
		{"plain run", []string{"/usr/local/bin/traductor", "run"}, "traductor", true},
		{"windows exe", []string{`C:\tools\Traductor.exe`, "run", "--force"}, "traductor", true},
		{"flags first", []string{"traductor", "--config", "pvz.yaml", "run"}, "/opt/traductor", true},
		{"bool flag first", []string{"traductor", "--verbose", "run"}, "traductor", true},
		{"status command", []string{"traductor", "status", "--watch"}, "traductor", false},
		{"config value named run", []string{"traductor", "--config", "run", "status"}, "traductor", false},
		{"other binary", []string{"python", "run"}, "traductor", false},
		{"no subcommand", []string{"traductor"}, "traductor", false},
		{"after terminator", []string{"traductor", "--", "run"}, "traductor", false},
		{"empty exe", []string{"traductor", "run"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPipelineCommand(tt.args, tt.exe))
		})
	}
}

func TestFindExcludesSelf(t *testing.T) {
	procs, err := Find(context.Background(), "")
	require.NoError(t, err)
	for _, p := range procs {
		assert.NotEmpty(t, p.Cmdline)
	}
}
