package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// active holds the process-wide configuration. Readers load it without
// locking; Initialize, SetConfig, and ReloadConfig swap the whole pointer,
// so the SIGHUP reload path never exposes a half-written Config.
var (
	active   atomic.Pointer[Config]
	loadOnce sync.Once
)

// Initialize loads the configuration from path, applies OVERTURE_*
// environment overrides, and installs it as the process configuration.
// Only the first call loads; later calls return nil without touching the
// installed configuration. The SIGHUP path goes through ReloadConfig.
func Initialize(path string) error {
	var err error
	loadOnce.Do(func() {
		var cfg *Config
		if cfg, err = LoadConfigWithEnvOverrides(path); err != nil {
			return
		}
		active.Store(cfg)
	})
	return err
}

// GetConfig returns the installed configuration, nil before Initialize or
// SetConfig has run. Callers own the nil handling: commands surface it as
// a ConfigError with an exit code, nothing in the tree panics over it.
func GetConfig() *Config {
	return active.Load()
}

// SetConfig installs cfg directly, bypassing file loading. Offline
// commands use it to run on compiled defaults; tests use it for fixture
// configs.
func SetConfig(cfg *Config) {
	active.Store(cfg)
}

// ReloadConfig re-reads the file and swaps the installed configuration
// only when loading and validation both succeed; on error the previous
// configuration stays installed. The run command wires this to SIGHUP so
// operators can pick up changes without a restart.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	active.Store(cfg)
	return nil
}
