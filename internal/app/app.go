package app

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"globesort/internal/config"
	"globesort/internal/logging"
	"globesort/internal/paths"
	"globesort/internal/report"
)

// App represents the application context
type App struct {
	Settings config.Settings
	Logger   *zap.Logger
	Printer  *report.Printer
	Out      io.Writer
	Config   *Config
}

// Config describes where the settings came from
type Config struct {
	Path     string
	Explicit bool
}

// Options configures New.
type Options struct {
	// ConfigPath overrides the default config file; a named file must exist.
	ConfigPath string
	// LogLevel overrides the configured level when non-empty.
	LogLevel string
	Out      io.Writer
	Err      io.Writer
}

// New creates a new application instance
func New(opts Options) (*App, error) {
	cfg := &Config{Path: opts.ConfigPath, Explicit: opts.ConfigPath != ""}
	if cfg.Path == "" {
		path, err := paths.DefaultConfigFile()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config file: %w", err)
		}
		cfg.Path = path
	}

	settings, err := config.Load(cfg.Path, cfg.Explicit)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	logger, err := logging.NewWithWriter(settings.LogLevel, opts.Err)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &App{
		Settings: settings,
		Logger:   logger,
		Printer:  report.NewPrinter(opts.Out),
		Out:      opts.Out,
		Config:   cfg,
	}, nil
}

// Close flushes the logger
func (a *App) Close() error {
	if a.Logger != nil {
		// Sync on a terminal stderr reports EINVAL on some platforms.
		_ = a.Logger.Sync()
	}
	return nil
}
