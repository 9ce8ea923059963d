// Package config resolves client settings from built-in defaults and an
// optional YAML file. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v4"

	"globesort/internal/endpoint"
)

const (
	DefaultMaxMessageSize = "100MiB"
	DefaultRuns           = 1
	DefaultParallel       = 1
	DefaultOutput         = "text"
	DefaultLogLevel       = "warn"
)

var validOutputs = []string{"text", "json"}

// File mirrors the YAML config file. Empty fields keep their defaults.
type File struct {
	MaxMessageSize  string `yaml:"max_message_size"`
	DialTimeout     string `yaml:"dial_timeout"`
	CallTimeout     string `yaml:"call_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	Runs            int    `yaml:"runs"`
	Parallel        int    `yaml:"parallel"`
	Workers         int    `yaml:"workers"`
	Verify          *bool  `yaml:"verify"`
	Seed            uint64 `yaml:"seed"`
	Output          string `yaml:"output"`
	LogLevel        string `yaml:"log_level"`
}

// Settings are the resolved client settings.
type Settings struct {
	MaxMessageSize  int
	DialTimeout     time.Duration
	CallTimeout     time.Duration
	ShutdownTimeout time.Duration
	Runs            int
	Parallel        int
	Workers         int
	Verify          bool
	Seed            uint64 // 0 selects a time-based seed
	Output          string
	LogLevel        string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		MaxMessageSize:  endpoint.DefaultMaxMessageSize,
		DialTimeout:     endpoint.DefaultDialTimeout,
		ShutdownTimeout: endpoint.DefaultShutdownTimeout,
		Runs:            DefaultRuns,
		Parallel:        DefaultParallel,
		Output:          DefaultOutput,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads path over the defaults. A missing file is only an error when
// required is set, i.e. the user named it explicitly.
func Load(path string, required bool) (Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config file path is controlled
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return s, nil
		}
		return s, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := f.Apply(&s); err != nil {
		return s, fmt.Errorf("config file %s: %w", path, err)
	}
	return s, s.Validate()
}

// Apply overlays the non-empty file fields onto s.
func (f *File) Apply(s *Settings) error {
	var err error
	if f.MaxMessageSize != "" {
		if s.MaxMessageSize, err = ParseSize(f.MaxMessageSize); err != nil {
			return fmt.Errorf("max_message_size: %w", err)
		}
	}
	if f.DialTimeout != "" {
		if s.DialTimeout, err = time.ParseDuration(f.DialTimeout); err != nil {
			return fmt.Errorf("dial_timeout: %w", err)
		}
	}
	if f.CallTimeout != "" {
		if s.CallTimeout, err = time.ParseDuration(f.CallTimeout); err != nil {
			return fmt.Errorf("call_timeout: %w", err)
		}
	}
	if f.ShutdownTimeout != "" {
		if s.ShutdownTimeout, err = time.ParseDuration(f.ShutdownTimeout); err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
	}
	if f.Runs != 0 {
		s.Runs = f.Runs
	}
	if f.Parallel != 0 {
		s.Parallel = f.Parallel
	}
	if f.Workers != 0 {
		s.Workers = f.Workers
	}
	if f.Verify != nil {
		s.Verify = *f.Verify
	}
	if f.Seed != 0 {
		s.Seed = f.Seed
	}
	if f.Output != "" {
		s.Output = strings.ToLower(f.Output)
	}
	if f.LogLevel != "" {
		s.LogLevel = strings.ToLower(f.LogLevel)
	}
	return nil
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	var errs []error
	if s.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max message size must be positive"))
	}
	if s.DialTimeout <= 0 {
		errs = append(errs, errors.New("dial timeout must be positive"))
	}
	if s.CallTimeout < 0 {
		errs = append(errs, errors.New("call timeout must not be negative"))
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if s.Runs < 1 {
		errs = append(errs, errors.New("runs must be at least 1"))
	}
	if s.Parallel < 1 {
		errs = append(errs, errors.New("parallel must be at least 1"))
	}
	if s.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}
	if !slices.Contains(validOutputs, s.Output) {
		errs = append(errs, fmt.Errorf("unknown output %q (available: %s)", s.Output, strings.Join(validOutputs, ", ")))
	}
	return errors.Join(errs...)
}

// ParseSize parses a humanized byte size such as "100MiB" or "4 MB".
func ParseSize(v string) (int, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<31-1 {
		return 0, fmt.Errorf("size %s out of range", v)
	}
	return int(n), nil
}
