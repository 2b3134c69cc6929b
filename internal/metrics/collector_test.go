package metrics

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(ToolOp("mftraining"), 30*time.Millisecond)
	c.RecordTiming(ToolOp("mftraining"), 10*time.Millisecond)
	c.RecordFailure(ToolOp("mftraining"))

	snap := c.Snapshot()
	op, ok := snap.Operations["tool:mftraining"]
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(1), op.Failures)
	assert.Equal(t, int64(40), op.TotalTimeMs)
	assert.Equal(t, 20.0, op.AvgTimeMs)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
}

func TestCollectorFailureOnly(t *testing.T) {
	c := NewCollector()
	c.RecordFailure(StageOp("TRAINING"))

	op := c.Snapshot().Operations["stage:TRAINING"]
	assert.Equal(t, int64(0), op.Count)
	assert.Equal(t, int64(0), op.MinTimeMs)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(SubstageOp("generate_tr_files"), time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Snapshot().Operations["substage:generate_tr_files"].Count)
}

func TestLogSummary(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(ToolOp("tesseract"), time.Millisecond)
	c.RecordTiming(StageOp("TRAINING"), time.Second)

	var buf bytes.Buffer
	c.LogSummary(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	out := buf.String()
	assert.Less(t, strings.Index(out, "stage:TRAINING"), strings.Index(out, "tool:tesseract"))
	assert.Contains(t, out, "run finished")
}
