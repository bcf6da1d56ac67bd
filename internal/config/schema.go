// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for bouncer.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process-wide logger.
	Log LogConfig `yaml:"log,omitempty"`

	// DataDir overrides the default persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Telemetry holds optional OpenTelemetry trace export settings.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig controls log output format and verbosity.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json". Defaults to "text".
	Format string `yaml:"format,omitempty"`
}

// TelemetryConfig configures OTLP trace export. Tracing stays disabled
// unless an endpoint is set.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `yaml:"insecure,omitempty"`

	// SampleRatio is the trace sampling ratio in [0, 1]. Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}
