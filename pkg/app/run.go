// Package app provides the shared entry point for the bouncer binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bouncerbot/bouncer/internal/config"
	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/security"
	"github.com/bouncerbot/bouncer/internal/telemetry"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data directory from both the config file and
	// the XDG default.
	DataDir string

	// LogLevel overrides the configured log level when non-empty.
	// One of "debug", "info", "warn", "error".
	LogLevel string
}

// Run loads configuration, builds the logger and tracer, loads and wires all
// modules, and blocks until a shutdown signal is received.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}

	// The redactor is shared with every module so tokens registered during
	// Provision never reach log output.
	redactor := security.NewRedactor()
	logger := newLogger(cfg.Log, redactor)

	// Tracing stays a no-op unless an OTLP endpoint is configured.
	shutdownTracing, err := telemetry.Setup(context.Background(), telemetryConfig(cfg), "bouncer", params.Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace exporter shutdown", "error", err)
		}
	}()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.redactor", redactor)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// Cross-module wiring happens between LoadModules and Start: every
	// module exists and is provisioned, nothing is running yet.
	if err := wireModules(application, logger); err != nil {
		return err
	}

	logger.Info("bouncer starting",
		"version", params.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"modules", len(ids),
	)

	return application.Run()
}

// newLogger builds the process logger: the configured text or JSON handler
// wrapped in the redacting handler.
func newLogger(lc config.LogConfig, redactor *security.Redactor) *slog.Logger {
	return slog.New(security.NewRedactingHandler(lc.NewHandler(os.Stderr), redactor))
}

// telemetryConfig maps the optional config section onto the telemetry
// package's own type. A nil section means tracing is disabled.
func telemetryConfig(cfg *config.Config) telemetry.Config {
	if cfg.Telemetry == nil {
		return telemetry.Config{}
	}
	return telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/bouncer/bouncer.yaml → ~/.config/bouncer/bouncer.yaml → ./bouncer.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "bouncer", "bouncer.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "bouncer", "bouncer.yaml"))
	}

	candidates = append(candidates, "bouncer.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/bouncer if set, otherwise ~/.local/share/bouncer per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "bouncer")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "bouncer")
}
