package config

import "time"

// Config is the root configuration for Overture. It covers the HTTP
// server, the policy pack source, subject resolution, frequency tracking,
// experiment storage, the audit ledger, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Policy configures where guardrail policy packs are loaded from and
	// whether they are watched for changes.
	Policy PolicyConfig `yaml:"policy"`

	// Subject configures subject snapshot resolution.
	Subject SubjectConfig `yaml:"subject"`

	// Frequency configures the send-frequency tracker and its journal.
	Frequency FrequencyConfig `yaml:"frequency"`

	// Experiments configures experiment storage and the evaluation sweep.
	Experiments ExperimentsConfig `yaml:"experiments"`

	// Ledger configures the audit ledger storage backend.
	Ledger LedgerConfig `yaml:"ledger"`

	// Telemetry contains observability configuration: logging, metrics,
	// and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8787", "0.0.0.0:8787").
	// Default: "127.0.0.1:8787"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds each request's handler, surfaced to handlers
	// through the request context.
	// Default: 15s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration for the API surface.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of allowed origins. Use ["*"] to allow
	// all origins (not recommended for production).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is the list of allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// PolicyConfig configures policy pack loading.
type PolicyConfig struct {
	// Mode selects the pack source.
	// Options: "file" (local file or directory), "git" (Git repository)
	// Default: "file"
	Mode string `yaml:"mode"`

	// FilePath is the pack file or directory when Mode is "file".
	// Default: "./policies"
	FilePath string `yaml:"file_path"`

	// Git configures the repository source when Mode is "git".
	Git GitPolicyConfig `yaml:"git"`

	// Watch reloads the pack automatically when the source changes: an
	// fsnotify watcher in file mode, a poll loop in git mode.
	// Default: false
	Watch bool `yaml:"watch"`
}

// GitPolicyConfig configures Git-based pack loading.
type GitPolicyConfig struct {
	// Repository is the clone URL (HTTPS or SSH).
	// Example: "https://github.com/acme/marketing-policies.git"
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the pack file or directory inside the repository.
	// Default: "policies"
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	// Default: os.TempDir()/overture-policies
	LocalPath string `yaml:"local_path"`

	// PollInterval between pulls when Watch is enabled.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// PullTimeout bounds each clone or pull.
	// Default: 30s
	PullTimeout time.Duration `yaml:"pull_timeout"`

	// Token enables HTTP token authentication when non-empty. Prefer the
	// OVERTURE_POLICY_GIT_TOKEN environment variable over the file.
	Token string `yaml:"token"`
}

// SubjectConfig configures subject snapshot resolution.
type SubjectConfig struct {
	// SnapshotTimeout bounds each snapshot read. Past it the decision
	// proceeds without a snapshot and snapshot-dependent checks fail
	// closed.
	// Default: 2s
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`

	// SnapshotsPath preloads subject snapshots into the server's provider
	// from a YAML or JSON file at startup (reloaded on SIGHUP). Empty
	// means no preload; subjects the provider does not know fail
	// snapshot-dependent checks closed.
	// Default: "" (no preload)
	SnapshotsPath string `yaml:"snapshots_path"`
}

// FrequencyConfig configures the send-frequency tracker.
type FrequencyConfig struct {
	// SQLitePath is the journal database file. Empty disables the durable
	// journal; windows then live in memory only and reset on restart.
	// Default: "data/frequency.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is how long a locked journal database is retried.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval between WAL checkpoints and retention prunes.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// Retention is how long send events are kept in the journal. It must
	// cover the longest frequency window in any policy pack.
	// Default: 840h (35 days)
	Retention time.Duration `yaml:"retention"`

	// BucketSize is the sliding-window bucket granularity. Smaller
	// buckets are more precise and use more memory.
	// Default: 1m
	BucketSize time.Duration `yaml:"bucket_size"`
}

// ExperimentsConfig configures experiment storage and evaluation.
type ExperimentsConfig struct {
	// Backend selects the experiment store.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file when Backend is "sqlite".
	// Default: "data/experiments.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is how long a locked database is retried.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Sweep enables the background evaluation sweep. The schedule itself
	// comes from the policy pack's experiments section.
	// Default: true
	Sweep bool `yaml:"sweep"`
}

// LedgerConfig configures the audit ledger.
type LedgerConfig struct {
	// Backend selects the ledger storage.
	// Options: "sqlite", "memory". Memory is for tests and the offline
	// decide command; production decisions belong in SQLite.
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file when Backend is "sqlite".
	// Default: "data/ledger.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is how long a locked database is retried.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// QueryDefaultLimit is the record count returned when a query names
	// no limit.
	// Default: 100
	QueryDefaultLimit int `yaml:"query_default_limit"`

	// QueryMaxLimit caps the record count of a single query.
	// Default: 10000
	QueryMaxLimit int `yaml:"query_max_limit"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "overture"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active. When false a noop
	// tracer is installed and no exporter is dialed.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the trace exporter.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector endpoint.
	// Example: "localhost:4317"
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS for the exporter connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export batch.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name stamped on spans.
	// Default: "overture"
	ServiceName string `yaml:"service_name"`
}
