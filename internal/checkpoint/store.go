package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/fsutil"
)

// Default retry policy for Save.
const (
	DefaultSaveAttempts = 5
	DefaultSaveDelay    = time.Second
)

// Source reports where a loaded checkpoint came from.
type Source string

const (
	SourceFile    Source = "file"
	SourceLog     Source = "log"
	SourceDefault Source = "default"
)

// Fallback reconstructs a checkpoint when the progress file is missing or
// unreadable. It reports false when it has no evidence.
type Fallback func() (Checkpoint, bool)

// Store persists the live checkpoint as a JSON file.
type Store struct {
	path     string
	fallback Fallback
	attempts int
	delay    time.Duration
	runID    string
	logger   *slog.Logger
	now      func() time.Time

	// writeFile is swapped in tests to simulate storage failures.
	writeFile func(path string, data []byte) error

	mu        sync.Mutex
	lastStage Stage
	saved     bool
}

// Option configures a Store.
type Option func(*Store)

// WithFallback sets the oracle consulted when the file is missing or invalid.
func WithFallback(f Fallback) Option {
	return func(s *Store) { s.fallback = f }
}

// WithRetry sets the number of save attempts and the fixed delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if delay >= 0 {
			s.delay = delay
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		attempts: DefaultSaveAttempts,
		delay:    DefaultSaveDelay,
		logger:   slog.Default(),
		now:      time.Now,
		writeFile: func(path string, data []byte) error {
			return fsutil.WriteFileAtomic(path, data, 0o644)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the progress file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the checkpoint stored in the file without any fallback.
func (s *Store) Read() (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read progress file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Checkpoint{}, fmt.Errorf("%w: empty progress file", ErrInvalid)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		if errors.Is(err, ErrInvalid) {
			return Checkpoint{}, err
		}
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cp, nil
}

// Load answers "where was I?". It never fails: the file wins when it is
// well-formed, then the fallback, then Default().
func (s *Store) Load() (Checkpoint, Source) {
	cp, err := s.Read()
	if err == nil {
		return cp, SourceFile
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("progress file unusable, falling back to log inference",
			"path", s.path, "error", err)
	}

	if s.fallback != nil {
		if cp, ok := s.fallback(); ok {
			return cp, SourceLog
		}
	}
	return Default(), SourceDefault
}

// SetRunID stamps checkpoints saved from now on that carry no run id.
func (s *Store) SetRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
}

// Save validates cp and writes it, retrying failed writes with a fixed delay.
// A save that moves to an earlier stage than the last one saved through this
// store is rejected.
func (s *Store) Save(cp Checkpoint) error {
	if cp.ScriptStatus == "" {
		cp.ScriptStatus = ScriptActive
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saved && cp.Stage < s.lastStage {
		return fmt.Errorf("%w: %s after %s", ErrStageRegression, cp.Stage, s.lastStage)
	}

	if cp.RunID == "" {
		cp.RunID = s.runID
	}
	cp.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		return s.writeFile(s.path, data)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), uint64(s.attempts-1))
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("progress save failed, retrying",
			"attempt", attempt,
			"max_attempts", s.attempts,
			"wait", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		s.logger.Error("failed to save progress",
			"path", s.path,
			"attempts", attempt,
			"stage", cp.Stage.String(),
			"error", err)
		return fmt.Errorf("%w after %d attempts: %w", ErrSaveExhausted, attempt, err)
	}

	s.lastStage = cp.Stage
	s.saved = true
	return nil
}

// Reset removes the progress file so the next run starts from scratch.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove progress file: %w", err)
	}
	s.saved = false
	return nil
}
