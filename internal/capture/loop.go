package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/metrics"
)

// Metric operation names.
const (
	OpFrame     = "capture:frame"
	OpRecognize = "capture:ocr"
	OpTranslate = "capture:translate"
)

// Result is one processed frame.
type Result struct {
	CapturedAt   time.Time
	Lines        []string
	Translations []string
}

// Archive stores processed frames.
type Archive interface {
	Save(ctx context.Context, r Result) error
}

// Loop grabs, recognizes, translates and renders frames at a fixed rate.
type Loop struct {
	Grabber    Grabber
	Recognizer Recognizer
	Translator Translator
	// Archive is optional.
	Archive   Archive
	Output    string
	Threshold uint8
	Limiter   *rate.Limiter
	Logger    *slog.Logger
	Metrics   *metrics.Collector

	now func() time.Time
}

// NewLoop creates a loop paced at cfg.FPS frames per second.
func NewLoop(cfg config.CaptureConfig, g Grabber, r Recognizer, t Translator, logger *slog.Logger, m *metrics.Collector) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Loop{
		Grabber:    g,
		Recognizer: r,
		Translator: t,
		Output:     cfg.Output,
		Threshold:  cfg.Threshold,
		Limiter:    rate.NewLimiter(rate.Limit(cfg.FPS), 1),
		Logger:     logger,
		Metrics:    m,
		now:        time.Now,
	}
}

// Run processes frames until ctx is done. Errors in a single frame are
// logged and the loop moves on.
func (l *Loop) Run(ctx context.Context) error {
	l.Logger.Info("Captura iniciada", "output", l.Output)
	defer l.Logger.Info("Captura detenida")

	for {
		if err := l.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for next frame: %w", err)
		}

		res, err := l.Frame(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			l.Logger.Warn("frame failed", "error", err)
		case len(res.Lines) > 0:
			l.Logger.Debug("frame translated", "lines", len(res.Lines))
		}
	}
}

// Frame processes a single frame and writes the overlay image.
func (l *Loop) Frame(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			l.Metrics.RecordFailure(OpFrame)
		}
		l.Metrics.Time(OpFrame, start)
	}()

	frame, err := l.Grabber.Grab()
	if err != nil {
		return Result{}, err
	}
	res.CapturedAt = l.clock()

	ocrStart := time.Now()
	res.Lines, err = l.Recognizer.Recognize(ctx, Preprocess(frame, l.Threshold))
	l.Metrics.Time(OpRecognize, ocrStart)
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}

	res.Translations = make([]string, 0, len(res.Lines))
	for _, line := range res.Lines {
		trStart := time.Now()
		out, err := l.Translator.Translate(ctx, line)
		l.Metrics.Time(OpTranslate, trStart)
		if err != nil {
			return Result{}, fmt.Errorf("translate %q: %w", line, err)
		}
		res.Translations = append(res.Translations, out)
	}

	if err := SaveOverlay(l.Output, DrawOverlay(frame, res.Translations)); err != nil {
		return Result{}, fmt.Errorf("write overlay: %w", err)
	}

	if l.Archive != nil && len(res.Lines) > 0 {
		if err := l.Archive.Save(ctx, res); err != nil && !errors.Is(err, context.Canceled) {
			l.Logger.Warn("archive frame", "error", err)
		}
	}
	return res, nil
}

func (l *Loop) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}
