package guardrail

import (
	"fmt"
	"time"
)

// EngineConfig contains configuration for the guardrail engine.
type EngineConfig struct {
	// CheckTimeout is the maximum time allowed for a single check.
	// A check that exceeds it fails closed. Default: 2s.
	CheckTimeout time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		CheckTimeout: 2 * time.Second,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("check timeout must be positive, got %v", c.CheckTimeout)
	}
	return nil
}
