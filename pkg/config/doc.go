// Package config provides configuration management for Overture.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention OVERTURE_SECTION_FIELD.
// For example:
//
//   - OVERTURE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - OVERTURE_LEDGER_SQLITE_PATH overrides ledger.sqlite_path
//   - OVERTURE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	// At application startup
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.ListenAddress)
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Validation
//
// All configuration is validated automatically during loading. Validation includes:
//
//   - Required field checks (e.g., ledger path when the sqlite backend is selected)
//   - Range validation (e.g., ports must be 1-65535, sample ratios 0-1)
//   - Enum validation (e.g., policy mode must be 'file' or 'git')
//   - Logical validation (e.g., query max limit must cover the default limit)
//
// Validation errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - policy.file_path: file path is required when mode is 'file'
//	  - telemetry.tracing.endpoint: endpoint is required when tracing is enabled
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8787"
//
//	policy:
//	  mode: "file"
//	  file_path: "./policies"
//
//	ledger:
//	  backend: "sqlite"
//	  sqlite_path: "data/ledger.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// All configuration access is thread-safe. The singleton pattern uses read-write
// locks to allow concurrent reads while protecting against concurrent writes during
// reload operations.
package config
