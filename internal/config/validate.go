package config

import (
	"errors"
	"fmt"

	"github.com/bouncerbot/bouncer/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and validates log and
// telemetry settings.
//
// A module entry enables that module: registered modules absent from the
// map simply do not load, so a bouncer can run without the optional ones
// (the gateway event listener, for instance).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	return errors.Join(errs...)
}

func validateLog(lc LogConfig) []error {
	var errs []error

	switch lc.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", lc.Level))
	}

	switch lc.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", lc.Format))
	}

	return errs
}

func validateTelemetry(tc *TelemetryConfig) []error {
	if tc == nil {
		return nil
	}
	var errs []error

	if tc.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is configured"))
	}
	if tc.SampleRatio < 0 || tc.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio %v is outside [0, 1]", tc.SampleRatio))
	}

	return errs
}
