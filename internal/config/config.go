package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thyrook/trainkit/internal/logger"
	"github.com/thyrook/trainkit/internal/schedule"
)

// Config represents the application configuration
type Config struct {
	AppName   string          `json:"app_name"`
	Version   string          `json:"version"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Training  TrainingConfig  `json:"training"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

// ScheduleConfig contains learning rate schedule settings
type ScheduleConfig struct {
	Kind            string  `json:"kind"`
	FirstCycleSteps int     `json:"first_cycle_steps"`
	CycleMult       float64 `json:"cycle_mult"`
	MaxLR           float64 `json:"max_lr"`
	MinLR           float64 `json:"min_lr"`
	WarmupSteps     int     `json:"warmup_steps"`
	Gamma           float64 `json:"gamma"`
}

// OptimizerConfig contains parameter group and solver settings
type OptimizerConfig struct {
	WeightDecay float64  `json:"weight_decay"`
	SplitDecay  bool     `json:"split_decay"`
	NoDecay     []string `json:"no_decay"`
	ClipMax     float64  `json:"clip_max"`
}

// TrainingConfig contains training loop settings
type TrainingConfig struct {
	Run             string `json:"run"`
	Epochs          int    `json:"epochs"`
	BatchSize       int    `json:"batch_size"`
	Samples         int    `json:"samples"`
	Seed            int64  `json:"seed"`
	CheckpointEvery int    `json:"checkpoint_every"`
	Resume          bool   `json:"resume"`
	WeightsPath     string `json:"weights_path"`
	WarmStartPath   string `json:"warm_start_path"`
}

// StorageConfig contains checkpoint store settings
type StorageConfig struct {
	DBPath          string `json:"db_path"`
	KeepCheckpoints int    `json:"keep_checkpoints"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AppName: "trainkit",
		Version: "0.1.0",
		Schedule: ScheduleConfig{
			Kind:            string(schedule.KindWarmupRestarts),
			FirstCycleSteps: 100,
			CycleMult:       1.0,
			MaxLR:           0.1,
			MinLR:           0.001,
			WarmupSteps:     10,
			Gamma:           1.0,
		},
		Optimizer: OptimizerConfig{
			WeightDecay: 1e-5,
			SplitDecay:  true,
			ClipMax:     5.0,
		},
		Training: TrainingConfig{
			Run:             "default",
			Epochs:          20,
			BatchSize:       32,
			Samples:         1024,
			Seed:            42,
			CheckpointEvery: 50,
			WeightsPath:     "models/weights.gob",
		},
		Storage: StorageConfig{
			DBPath:          "data/checkpoints.db",
			KeepCheckpoints: 5,
		},
		Logging: LoggingConfig{
			Level: string(logger.LevelInfo),
			Path:  "logs/trainkit.log",
		},
	}
}

// Options converts the schedule section into scheduler options
func (s ScheduleConfig) Options() schedule.Options {
	return schedule.Options{
		FirstCycleSteps: s.FirstCycleSteps,
		CycleMult:       s.CycleMult,
		MaxLR:           s.MaxLR,
		MinLR:           s.MinLR,
		WarmupSteps:     s.WarmupSteps,
		Gamma:           s.Gamma,
		LastStep:        -1,
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch schedule.Kind(c.Schedule.Kind) {
	case "", schedule.KindWarmupRestarts, schedule.KindStep, schedule.KindExponential:
	default:
		return fmt.Errorf("schedule: %w: unknown kind %q", schedule.ErrInvalidConfig, c.Schedule.Kind)
	}
	if err := c.Schedule.Options().Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if c.Schedule.MaxLR <= 0 {
		return fmt.Errorf("schedule max_lr must be positive, got %g", c.Schedule.MaxLR)
	}
	if c.Schedule.MinLR < 0 || c.Schedule.MinLR > c.Schedule.MaxLR {
		return fmt.Errorf("schedule min_lr must be in [0, max_lr], got %g", c.Schedule.MinLR)
	}

	if c.Optimizer.WeightDecay < 0 {
		return fmt.Errorf("weight decay must not be negative, got %g", c.Optimizer.WeightDecay)
	}
	if c.Optimizer.ClipMax < 0 {
		return fmt.Errorf("clip max must not be negative, got %g", c.Optimizer.ClipMax)
	}

	if c.Training.Run == "" {
		return fmt.Errorf("training run name is required")
	}
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.Samples < c.Training.BatchSize {
		return fmt.Errorf("samples (%d) must be at least the batch size (%d)", c.Training.Samples, c.Training.BatchSize)
	}
	if c.Training.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint interval must not be negative, got %d", c.Training.CheckpointEvery)
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db_path is required")
	}
	if c.Storage.KeepCheckpoints < 0 {
		return fmt.Errorf("keep_checkpoints must not be negative, got %d", c.Storage.KeepCheckpoints)
	}

	switch logger.Level(c.Logging.Level) {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		return fmt.Errorf("unknown log level: %q", c.Logging.Level)
	}

	return nil
}

// Load reads and parses the configuration file.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to the default configuration
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates the parent directories of every configured path
func (c *Config) EnsureDirectories() error {
	paths := []string{c.Logging.Path, c.Storage.DBPath, c.Training.WeightsPath}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	return nil
}
