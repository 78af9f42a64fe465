package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every validation error in a configuration,
// so one run surfaces all problems instead of the first.
type ValidationError struct {
	// Errors contains all validation errors found.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// listing every rule violation, or nil when the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateSubject(&cfg.Subject)...)
	errs = append(errs, validateFrequency(&cfg.Frequency)...)
	errs = append(errs, validateExperiments(&cfg.Experiments)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, port, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: must be host:port", cfg.ListenAddress),
		})
	} else if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid port %q", port),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must not be negative",
		})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.request_timeout",
			Message: "request timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must not be negative",
		})
	}
	if cfg.MaxHeaderBytes > 10<<20 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "server.cors.max_age",
			Message: "max age must not be negative",
		})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{
				Field:   "policy.file_path",
				Message: "file path is required when mode is 'file'",
			})
		}
	case "git":
		if cfg.Git.Repository == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.repository",
				Message: "repository is required when mode is 'git'",
			})
		}
		if cfg.Git.Branch == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.branch",
				Message: "branch is required when mode is 'git'",
			})
		}
		if cfg.Git.PollInterval <= 0 {
			errs = append(errs, FieldError{
				Field:   "policy.git.poll_interval",
				Message: "poll interval must be positive",
			})
		}
		if cfg.Git.PullTimeout <= 0 {
			errs = append(errs, FieldError{
				Field:   "policy.git.pull_timeout",
				Message: "pull timeout must be positive",
			})
		}
	case "":
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: "mode is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "policy.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'file' or 'git'", cfg.Mode),
		})
	}

	return errs
}

func validateSubject(cfg *SubjectConfig) []FieldError {
	var errs []FieldError

	if cfg.SnapshotTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "subject.snapshot_timeout",
			Message: "snapshot timeout must be positive",
		})
	}

	return errs
}

func validateFrequency(cfg *FrequencyConfig) []FieldError {
	var errs []FieldError

	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "frequency.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}
	if cfg.CheckpointInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "frequency.checkpoint_interval",
			Message: "checkpoint interval must be positive",
		})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{
			Field:   "frequency.retention",
			Message: "retention must be positive",
		})
	}
	if cfg.BucketSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "frequency.bucket_size",
			Message: "bucket size must be positive",
		})
	}

	return errs
}

func validateExperiments(cfg *ExperimentsConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{
				Field:   "experiments.sqlite_path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
	case "":
		errs = append(errs, FieldError{
			Field:   "experiments.backend",
			Message: "backend is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "experiments.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "experiments.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}

	return errs
}

func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite_path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
	case "":
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: "backend is required",
		})
	default:
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "ledger.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}
	if cfg.MaxOpenConns < 1 {
		errs = append(errs, FieldError{
			Field:   "ledger.max_open_conns",
			Message: "max open conns must be at least 1",
		})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{
			Field:   "ledger.max_idle_conns",
			Message: "max idle conns must not be negative",
		})
	}
	if cfg.QueryDefaultLimit < 1 {
		errs = append(errs, FieldError{
			Field:   "ledger.query_default_limit",
			Message: "query default limit must be at least 1",
		})
	}
	if cfg.QueryMaxLimit < cfg.QueryDefaultLimit {
		errs = append(errs, FieldError{
			Field:   "ledger.query_max_limit",
			Message: "query max limit must not be below the default limit",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be debug, info, warn, or error", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be json or text", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: fmt.Sprintf("invalid path %q: must start with '/'", cfg.Metrics.Path),
			})
		}
		if cfg.Metrics.Namespace == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.namespace",
				Message: "namespace is required when metrics are enabled",
			})
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q: only 'otlp' is supported", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be always, never, or ratio", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio %v out of range [0, 1]", cfg.Tracing.SampleRatio),
			})
		}
		if cfg.Tracing.Timeout <= 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.timeout",
				Message: "timeout must be positive",
			})
		}
	}

	return errs
}
