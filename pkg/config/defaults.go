package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8787"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
	DefaultCORSMaxAge      = 3600

	// Policy defaults
	DefaultPolicyMode         = "file"
	DefaultPolicyFilePath     = "./policies"
	DefaultPolicyGitBranch    = "main"
	DefaultPolicyGitPath      = "policies"
	DefaultPolicyPollInterval = 60 * time.Second
	DefaultPolicyPullTimeout  = 30 * time.Second

	// Subject defaults
	DefaultSnapshotTimeout = 2 * time.Second

	// Frequency defaults
	DefaultFrequencySQLitePath = "data/frequency.db"
	DefaultFrequencyCheckpoint = 5 * time.Minute
	DefaultFrequencyRetention  = 35 * 24 * time.Hour
	DefaultFrequencyBucketSize = time.Minute

	// Experiments defaults
	DefaultExperimentsBackend    = "sqlite"
	DefaultExperimentsSQLitePath = "data/experiments.db"

	// Ledger defaults
	DefaultLedgerBackend      = "sqlite"
	DefaultLedgerSQLitePath   = "data/ledger.db"
	DefaultLedgerMaxOpenConns = 10
	DefaultLedgerMaxIdleConns = 5
	DefaultQueryDefaultLimit  = 100
	DefaultQueryMaxLimit      = 10000

	// Shared SQLite defaults
	DefaultBusyTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "overture"
	DefaultTracingExporter  = "otlp"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingService   = "overture"
)

// DefaultConfig returns a fully populated configuration. Loading starts
// from this value, so absent YAML fields keep their defaults and explicit
// false booleans are respected.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			RequestTimeout:  DefaultRequestTimeout,
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         DefaultCORSMaxAge,
			},
		},
		Policy: PolicyConfig{
			Mode:     DefaultPolicyMode,
			FilePath: DefaultPolicyFilePath,
			Git: GitPolicyConfig{
				Branch:       DefaultPolicyGitBranch,
				Path:         DefaultPolicyGitPath,
				PollInterval: DefaultPolicyPollInterval,
				PullTimeout:  DefaultPolicyPullTimeout,
			},
		},
		Subject: SubjectConfig{
			SnapshotTimeout: DefaultSnapshotTimeout,
		},
		Frequency: FrequencyConfig{
			SQLitePath:         DefaultFrequencySQLitePath,
			BusyTimeout:        DefaultBusyTimeout,
			CheckpointInterval: DefaultFrequencyCheckpoint,
			Retention:          DefaultFrequencyRetention,
			BucketSize:         DefaultFrequencyBucketSize,
		},
		Experiments: ExperimentsConfig{
			Backend:     DefaultExperimentsBackend,
			SQLitePath:  DefaultExperimentsSQLitePath,
			BusyTimeout: DefaultBusyTimeout,
			Sweep:       true,
		},
		Ledger: LedgerConfig{
			Backend:           DefaultLedgerBackend,
			SQLitePath:        DefaultLedgerSQLitePath,
			BusyTimeout:       DefaultBusyTimeout,
			MaxOpenConns:      DefaultLedgerMaxOpenConns,
			MaxIdleConns:      DefaultLedgerMaxIdleConns,
			QueryDefaultLimit: DefaultQueryDefaultLimit,
			QueryMaxLimit:     DefaultQueryMaxLimit,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLoggingLevel,
				Format: DefaultLoggingFormat,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Path:      DefaultMetricsPath,
				Namespace: DefaultMetricsNamespace,
			},
			Tracing: TracingConfig{
				Exporter:    DefaultTracingExporter,
				Endpoint:    DefaultTracingEndpoint,
				Sampler:     DefaultTracingSampler,
				SampleRatio: DefaultTracingRatio,
				Insecure:    true,
				Timeout:     DefaultTracingTimeout,
				ServiceName: DefaultTracingService,
			},
		},
	}
}

// ApplyDefaults fills zero-valued fields with defaults. It is idempotent
// and safe to call on hand-constructed configs. Booleans are left alone:
// unmarshalling over DefaultConfig is what preserves true defaults, and
// an explicit false must stay false.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Policy
	if cfg.Policy.Mode == "" {
		cfg.Policy.Mode = DefaultPolicyMode
	}
	if cfg.Policy.FilePath == "" {
		cfg.Policy.FilePath = DefaultPolicyFilePath
	}
	if cfg.Policy.Git.Branch == "" {
		cfg.Policy.Git.Branch = DefaultPolicyGitBranch
	}
	if cfg.Policy.Git.Path == "" {
		cfg.Policy.Git.Path = DefaultPolicyGitPath
	}
	if cfg.Policy.Git.PollInterval == 0 {
		cfg.Policy.Git.PollInterval = DefaultPolicyPollInterval
	}
	if cfg.Policy.Git.PullTimeout == 0 {
		cfg.Policy.Git.PullTimeout = DefaultPolicyPullTimeout
	}

	// Subject
	if cfg.Subject.SnapshotTimeout == 0 {
		cfg.Subject.SnapshotTimeout = DefaultSnapshotTimeout
	}

	// Frequency. SQLitePath stays as given: empty means no journal.
	if cfg.Frequency.BusyTimeout == 0 {
		cfg.Frequency.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Frequency.CheckpointInterval == 0 {
		cfg.Frequency.CheckpointInterval = DefaultFrequencyCheckpoint
	}
	if cfg.Frequency.Retention == 0 {
		cfg.Frequency.Retention = DefaultFrequencyRetention
	}
	if cfg.Frequency.BucketSize == 0 {
		cfg.Frequency.BucketSize = DefaultFrequencyBucketSize
	}

	// Experiments
	if cfg.Experiments.Backend == "" {
		cfg.Experiments.Backend = DefaultExperimentsBackend
	}
	if cfg.Experiments.SQLitePath == "" {
		cfg.Experiments.SQLitePath = DefaultExperimentsSQLitePath
	}
	if cfg.Experiments.BusyTimeout == 0 {
		cfg.Experiments.BusyTimeout = DefaultBusyTimeout
	}

	// Ledger
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = DefaultLedgerSQLitePath
	}
	if cfg.Ledger.BusyTimeout == 0 {
		cfg.Ledger.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Ledger.MaxOpenConns == 0 {
		cfg.Ledger.MaxOpenConns = DefaultLedgerMaxOpenConns
	}
	if cfg.Ledger.MaxIdleConns == 0 {
		cfg.Ledger.MaxIdleConns = DefaultLedgerMaxIdleConns
	}
	if cfg.Ledger.QueryDefaultLimit == 0 {
		cfg.Ledger.QueryDefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Ledger.QueryMaxLimit == 0 {
		cfg.Ledger.QueryMaxLimit = DefaultQueryMaxLimit
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
}
