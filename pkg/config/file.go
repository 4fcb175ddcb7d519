package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// File is the erctl configuration file.
type File struct {
	// Instance is the provider instance name.
	Instance string `yaml:"instance" validate:"omitempty,max=128"`

	// Settings is the inline engine settings document.
	Settings string `yaml:"settings" validate:"omitempty,json"`

	// SettingsFile points at a JSON settings document. It is resolved
	// relative to the configuration file.
	SettingsFile string `yaml:"settings_file" validate:"omitempty,excluded_with=Settings"`

	Verbose bool `yaml:"verbose"`

	// ConfigID pins the engine to a configuration. Zero uses the default.
	ConfigID int64 `yaml:"config_id" validate:"gte=0"`

	// Workers is the dispatcher pool size. Zero uses the default.
	Workers int `yaml:"workers" validate:"gte=0,lte=256"`

	// Engine is the path of the engine module manifest.
	Engine string `yaml:"engine"`

	// Journal is the path of the SQLite failure journal. Empty disables it.
	Journal string `yaml:"journal"`

	// Redact hides parameter values in failures.
	Redact bool `yaml:"redact"`

	Telemetry TelemetrySection `yaml:"telemetry"`

	// dir is the directory the file was loaded from.
	dir string
}

// TelemetrySection overrides parts of the telemetry configuration.
type TelemetrySection struct {
	// Preset replaces the base configuration with the production or
	// development defaults before the other fields are applied.
	Preset         string   `yaml:"preset" validate:"omitempty,oneof=production development"`
	LogLevel       string   `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat      string   `yaml:"log_format" validate:"omitempty,oneof=console json"`
	MetricsEnabled *bool    `yaml:"metrics_enabled"`
	MetricsAddress string   `yaml:"metrics_address"`
	TraceExporter  string   `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TraceEndpoint  string   `yaml:"trace_endpoint" validate:"required_if=TraceExporter otlp"`
	SamplingRate   *float64 `yaml:"sampling_rate" validate:"omitempty,gte=0,lte=1"`
}

var fileValidate = validator.New()

// LoadFile reads and validates a configuration file. Relative paths inside
// it are resolved against the file's directory.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f.dir = filepath.Dir(path)
	f.SettingsFile = f.resolve(f.SettingsFile)
	f.Engine = f.resolve(f.Engine)
	f.Journal = f.resolve(f.Journal)
	return f, nil
}

// ParseFile decodes and validates a configuration document.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field constraints.
func (f *File) Validate() error {
	if err := fileValidate.Struct(f); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolveSettings returns the inline settings or the contents of the
// settings file. It returns "" when neither is set.
func (f *File) ResolveSettings() (string, error) {
	if f.Settings != "" {
		return f.Settings, nil
	}
	if f.SettingsFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.SettingsFile)
	if err != nil {
		return "", fmt.Errorf("failed to read settings file: %w", err)
	}
	return string(data), nil
}

// ApplyTelemetry returns a copy of base with the file's overrides applied.
func (f *File) ApplyTelemetry(base *telemetry.Config) *telemetry.Config {
	cfg := *base
	t := f.Telemetry
	if preset := telemetryPreset(t.Preset); preset != nil {
		preset.ServiceName = base.ServiceName
		preset.ServiceVersion = base.ServiceVersion
		cfg = *preset
	}
	if t.LogLevel != "" {
		cfg.Logging.Level = t.LogLevel
	}
	if t.LogFormat != "" {
		cfg.Logging.Format = t.LogFormat
	}
	if t.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *t.MetricsEnabled
	}
	if t.MetricsAddress != "" {
		cfg.Metrics.ListenAddress = t.MetricsAddress
	}
	if t.TraceExporter != "" {
		cfg.Tracing.Enabled = t.TraceExporter != "none"
		cfg.Tracing.Exporter = t.TraceExporter
	}
	if t.TraceEndpoint != "" {
		cfg.Tracing.Endpoint = t.TraceEndpoint
	}
	if t.SamplingRate != nil {
		cfg.Tracing.SamplingRate = *t.SamplingRate
	}
	return &cfg
}

func telemetryPreset(name string) *telemetry.Config {
	switch name {
	case "production":
		return telemetry.ProductionConfig()
	case "development":
		return telemetry.DevelopmentConfig()
	}
	return nil
}

func (f *File) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}
