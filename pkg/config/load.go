package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file. Unknown fields are
// rejected so typos surface at startup instead of silently falling back
// to defaults. Absent fields keep the values from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the convention
// OVERTURE_SECTION_FIELD (e.g. OVERTURE_SERVER_LISTEN_ADDRESS) and always
// take precedence over the file.
//
// The loading sequence is: file → defaults → env overrides → validation.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies OVERTURE_* environment variables to the
// configuration. Unparseable values are ignored; validation catches any
// damage afterwards.
func applyEnvOverrides(cfg *Config) {
	// Server
	setString(&cfg.Server.ListenAddress, "OVERTURE_SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "OVERTURE_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "OVERTURE_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "OVERTURE_SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "OVERTURE_SERVER_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.Server.RequestTimeout, "OVERTURE_SERVER_REQUEST_TIMEOUT")
	setInt(&cfg.Server.MaxHeaderBytes, "OVERTURE_SERVER_MAX_HEADER_BYTES")

	// Policy
	setString(&cfg.Policy.Mode, "OVERTURE_POLICY_MODE")
	setString(&cfg.Policy.FilePath, "OVERTURE_POLICY_FILE_PATH")
	setBool(&cfg.Policy.Watch, "OVERTURE_POLICY_WATCH")
	setString(&cfg.Policy.Git.Repository, "OVERTURE_POLICY_GIT_REPOSITORY")
	setString(&cfg.Policy.Git.Branch, "OVERTURE_POLICY_GIT_BRANCH")
	setString(&cfg.Policy.Git.Path, "OVERTURE_POLICY_GIT_PATH")
	setString(&cfg.Policy.Git.LocalPath, "OVERTURE_POLICY_GIT_LOCAL_PATH")
	setDuration(&cfg.Policy.Git.PollInterval, "OVERTURE_POLICY_GIT_POLL_INTERVAL")
	setString(&cfg.Policy.Git.Token, "OVERTURE_POLICY_GIT_TOKEN")

	// Subject
	setDuration(&cfg.Subject.SnapshotTimeout, "OVERTURE_SUBJECT_SNAPSHOT_TIMEOUT")
	setString(&cfg.Subject.SnapshotsPath, "OVERTURE_SUBJECT_SNAPSHOTS_PATH")

	// Frequency
	setString(&cfg.Frequency.SQLitePath, "OVERTURE_FREQUENCY_SQLITE_PATH")
	setDuration(&cfg.Frequency.CheckpointInterval, "OVERTURE_FREQUENCY_CHECKPOINT_INTERVAL")
	setDuration(&cfg.Frequency.Retention, "OVERTURE_FREQUENCY_RETENTION")

	// Experiments
	setString(&cfg.Experiments.Backend, "OVERTURE_EXPERIMENTS_BACKEND")
	setString(&cfg.Experiments.SQLitePath, "OVERTURE_EXPERIMENTS_SQLITE_PATH")
	setBool(&cfg.Experiments.Sweep, "OVERTURE_EXPERIMENTS_SWEEP")

	// Ledger
	setString(&cfg.Ledger.Backend, "OVERTURE_LEDGER_BACKEND")
	setString(&cfg.Ledger.SQLitePath, "OVERTURE_LEDGER_SQLITE_PATH")
	setInt(&cfg.Ledger.QueryDefaultLimit, "OVERTURE_LEDGER_QUERY_DEFAULT_LIMIT")
	setInt(&cfg.Ledger.QueryMaxLimit, "OVERTURE_LEDGER_QUERY_MAX_LIMIT")

	// Telemetry
	setString(&cfg.Telemetry.Logging.Level, "OVERTURE_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "OVERTURE_TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "OVERTURE_TELEMETRY_METRICS_ENABLED")
	setString(&cfg.Telemetry.Metrics.Path, "OVERTURE_TELEMETRY_METRICS_PATH")
	setString(&cfg.Telemetry.Metrics.Namespace, "OVERTURE_TELEMETRY_METRICS_NAMESPACE")
	setBool(&cfg.Telemetry.Tracing.Enabled, "OVERTURE_TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "OVERTURE_TELEMETRY_TRACING_ENDPOINT")
	setString(&cfg.Telemetry.Tracing.Sampler, "OVERTURE_TELEMETRY_TRACING_SAMPLER")
	setFloat(&cfg.Telemetry.Tracing.SampleRatio, "OVERTURE_TELEMETRY_TRACING_SAMPLE_RATIO")
	setBool(&cfg.Telemetry.Tracing.Insecure, "OVERTURE_TELEMETRY_TRACING_INSECURE")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
