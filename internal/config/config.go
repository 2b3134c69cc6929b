// Package config loads the traductor configuration and builds its logger.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// TRADUCTOR_MODEL_NAME=pvz.
const EnvPrefix = "TRADUCTOR"

// Config holds all configuration values.
type Config struct {
	ProgressFile string          `mapstructure:"progress_file" yaml:"progress_file" validate:"required"`
	Log          LogConfig       `mapstructure:"log" yaml:"log"`
	Store        StoreConfig     `mapstructure:"store" yaml:"store"`
	Inference    InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Data         DataConfig      `mapstructure:"data" yaml:"data"`
	Tools        ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Model        ModelConfig     `mapstructure:"model" yaml:"model"`
	Dashboard    DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Capture      CaptureConfig   `mapstructure:"capture" yaml:"capture"`
}

// LogConfig describes the log sinks.
type LogConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir" validate:"required"`
	Active          string `mapstructure:"active" yaml:"active" validate:"required"`
	Historical      string `mapstructure:"historical" yaml:"historical" validate:"required"`
	Error           string `mapstructure:"error" yaml:"error" validate:"required"`
	Level           string `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
	HistoricalMaxMB int    `mapstructure:"historical_max_mb" yaml:"historical_max_mb" validate:"min=1"`
	HistoricalFiles int    `mapstructure:"historical_files" yaml:"historical_files" validate:"min=0"`
}

// StoreConfig is the progress file save retry policy.
type StoreConfig struct {
	SaveAttempts int           `mapstructure:"save_attempts" yaml:"save_attempts" validate:"min=1"`
	SaveDelay    time.Duration `mapstructure:"save_delay" yaml:"save_delay" validate:"min=0"`
}

// InferenceConfig controls log-based state reconstruction.
type InferenceConfig struct {
	TailLines int `mapstructure:"tail_lines" yaml:"tail_lines" validate:"min=1"`
}

// DataConfig describes the synthetic training data.
type DataConfig struct {
	TrainingText  string `mapstructure:"training_text" yaml:"training_text" validate:"required"`
	Dictionary    string `mapstructure:"dictionary" yaml:"dictionary"`
	FontsDir      string `mapstructure:"fonts_dir" yaml:"fonts_dir" validate:"required"`
	OutputDir     string `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`
	FontSizes     []int  `mapstructure:"font_sizes" yaml:"font_sizes" validate:"min=1,dive,min=1"`
	LinesPerImage int    `mapstructure:"lines_per_image" yaml:"lines_per_image" validate:"min=1"`
	ImageWidth    int    `mapstructure:"image_width" yaml:"image_width" validate:"min=1"`
}

// ToolsConfig locates the training binaries and sizes their batches.
type ToolsConfig struct {
	BinDir               string `mapstructure:"bin_dir" yaml:"bin_dir"`
	UnicharsetBatch      int    `mapstructure:"unicharset_batch" yaml:"unicharset_batch" validate:"min=1"`
	ShapeClusteringBatch int    `mapstructure:"shapeclustering_batch" yaml:"shapeclustering_batch" validate:"min=1"`
	MFTrainingBatch      int    `mapstructure:"mftraining_batch" yaml:"mftraining_batch" validate:"min=1"`
	MFTrainingMaxBatches int    `mapstructure:"mftraining_max_batches" yaml:"mftraining_max_batches" validate:"min=1"`
}

// ModelConfig names the trained model and where it is installed.
type ModelConfig struct {
	Name        string `mapstructure:"name" yaml:"name" validate:"required,alphanum"`
	TessdataDir string `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
	HanOnly     bool   `mapstructure:"han_only" yaml:"han_only"`
}

// DashboardConfig configures the progress web view.
type DashboardConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"min=10ms"`
}

// CaptureConfig configures the screen translation tool.
type CaptureConfig struct {
	Display    int           `mapstructure:"display" yaml:"display" validate:"min=0"`
	Region     RegionConfig  `mapstructure:"region" yaml:"region"`
	FPS        float64       `mapstructure:"fps" yaml:"fps" validate:"gt=0"`
	Threshold  uint8         `mapstructure:"threshold" yaml:"threshold"`
	Language   string        `mapstructure:"language" yaml:"language" validate:"required"`
	PSM        int           `mapstructure:"psm" yaml:"psm" validate:"min=0,max=13"`
	OEM        int           `mapstructure:"oem" yaml:"oem" validate:"min=0,max=3"`
	Output     string        `mapstructure:"output" yaml:"output" validate:"required"`
	Dictionary string        `mapstructure:"dictionary" yaml:"dictionary"`
	Translator string        `mapstructure:"translator" yaml:"translator" validate:"oneof=dictionary ollama"`
	Ollama     OllamaConfig  `mapstructure:"ollama" yaml:"ollama"`
	Archive    ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// RegionConfig is a screen rectangle. A zero size captures the whole display.
type RegionConfig struct {
	X      int `mapstructure:"x" yaml:"x"`
	Y      int `mapstructure:"y" yaml:"y"`
	Width  int `mapstructure:"width" yaml:"width" validate:"min=0"`
	Height int `mapstructure:"height" yaml:"height" validate:"min=0"`
}

// OllamaConfig configures the LLM translation backend.
type OllamaConfig struct {
	Host           string `mapstructure:"host" yaml:"host" validate:"omitempty,url"`
	Model          string `mapstructure:"model" yaml:"model"`
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"`
}

// ArchiveConfig configures the optional MySQL capture archive.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Enabled true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("progress_file", "progress.json")

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.active", "active.log")
	v.SetDefault("log.historical", "historical.log")
	v.SetDefault("log.error", "error.log")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.historical_max_mb", 10)
	v.SetDefault("log.historical_files", 5)

	v.SetDefault("store.save_attempts", 5)
	v.SetDefault("store.save_delay", time.Second)

	v.SetDefault("inference.tail_lines", 6)

	v.SetDefault("data.training_text", "training_text.txt")
	v.SetDefault("data.dictionary", "")
	v.SetDefault("data.fonts_dir", "fonts")
	v.SetDefault("data.output_dir", "pvz_training_data")
	v.SetDefault("data.font_sizes", []int{9, 12, 16, 20, 24, 28, 32, 36, 40, 48, 56})
	v.SetDefault("data.lines_per_image", 25)
	v.SetDefault("data.image_width", 1600)

	v.SetDefault("tools.bin_dir", "")
	v.SetDefault("tools.unicharset_batch", 100)
	v.SetDefault("tools.shapeclustering_batch", 100)
	v.SetDefault("tools.mftraining_batch", 80)
	v.SetDefault("tools.mftraining_max_batches", 500)

	v.SetDefault("model.name", "pvz")
	v.SetDefault("model.tessdata_dir", "")
	v.SetDefault("model.han_only", true)

	v.SetDefault("dashboard.addr", ":3391")
	v.SetDefault("dashboard.poll_interval", time.Second)

	v.SetDefault("capture.display", 0)
	v.SetDefault("capture.region.x", 0)
	v.SetDefault("capture.region.y", 0)
	v.SetDefault("capture.region.width", 0)
	v.SetDefault("capture.region.height", 0)
	v.SetDefault("capture.fps", 10)
	v.SetDefault("capture.threshold", 150)
	v.SetDefault("capture.language", "pvz")
	v.SetDefault("capture.psm", 6)
	v.SetDefault("capture.oem", 3)
	v.SetDefault("capture.output", "captured_overlay.png")
	v.SetDefault("capture.dictionary", "")
	v.SetDefault("capture.translator", "dictionary")
	v.SetDefault("capture.ollama.host", "http://localhost:11434")
	v.SetDefault("capture.ollama.model", "llama3.2")
	v.SetDefault("capture.ollama.target_language", "español")
	v.SetDefault("capture.archive.enabled", false)
	v.SetDefault("capture.archive.dsn", "")
}

// Load reads configuration from path (or traductor.yaml in the working
// directory when path is empty), environment overrides and defaults.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("traductor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level {
	return parseLogLevel(c.Log.Level)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
