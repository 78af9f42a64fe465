package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// resetSingleton clears the installed configuration between tests.
func resetSingleton() {
	active.Store(nil)
	loadOnce = sync.Once{}
}

func TestInitialize(t *testing.T) {
	resetSingleton()

	configPath := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8787"

telemetry:
  logging:
    level: "info"
    format: "json"
`)

	if err := Initialize(configPath); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8787" {
		t.Errorf("expected listen address %q, got %q", "127.0.0.1:8787", cfg.Server.ListenAddress)
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetSingleton()

	configPath1 := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8787"
`)
	configPath2 := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9090"
`)

	if err := Initialize(configPath1); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	// Second initialization should be ignored
	Initialize(configPath2)

	cfg := GetConfig()
	if cfg.Server.ListenAddress != "127.0.0.1:8787" {
		t.Errorf("expected first config to win, got %q", cfg.Server.ListenAddress)
	}
}

func TestGetConfig_BeforeInitialize(t *testing.T) {
	resetSingleton()

	if cfg := GetConfig(); cfg != nil {
		t.Error("expected nil config before initialization")
	}
}

func TestSetConfig(t *testing.T) {
	resetSingleton()

	testCfg := DefaultConfig()
	testCfg.Server.ListenAddress = "192.168.1.1:7070"

	SetConfig(testCfg)

	retrievedCfg := GetConfig()
	if retrievedCfg == nil {
		t.Fatal("expected non-nil config after SetConfig")
	}
	if retrievedCfg.Server.ListenAddress != "192.168.1.1:7070" {
		t.Errorf("expected listen address %q, got %q", "192.168.1.1:7070", retrievedCfg.Server.ListenAddress)
	}
}

func TestReloadConfig(t *testing.T) {
	resetSingleton()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	initialContent := `
server:
  listen_address: "127.0.0.1:8787"

telemetry:
  logging:
    level: "info"
`
	if err := os.WriteFile(configPath, []byte(initialContent), 0644); err != nil {
		t.Fatalf("failed to write initial config file: %v", err)
	}

	if err := Initialize(configPath); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	updatedContent := `
server:
  listen_address: "0.0.0.0:9090"

telemetry:
  logging:
    level: "debug"
`
	if err := os.WriteFile(configPath, []byte(updatedContent), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	if err := ReloadConfig(configPath); err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}

	reloadedCfg := GetConfig()
	if reloadedCfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected updated listen address %q, got %q", "0.0.0.0:9090", reloadedCfg.Server.ListenAddress)
	}
	if reloadedCfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected updated logging level %q, got %q", "debug", reloadedCfg.Telemetry.Logging.Level)
	}
}

func TestReloadConfig_ValidationFailure(t *testing.T) {
	resetSingleton()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	validContent := `
server:
  listen_address: "127.0.0.1:8787"
`
	if err := os.WriteFile(configPath, []byte(validContent), 0644); err != nil {
		t.Fatalf("failed to write initial config file: %v", err)
	}

	if err := Initialize(configPath); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	originalCfg := GetConfig()

	invalidContent := `
telemetry:
  logging:
    level: "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write invalid config file: %v", err)
	}

	// Reload must fail and leave the original config in place.
	if err := ReloadConfig(configPath); err == nil {
		t.Fatal("expected error when reloading invalid config")
	}

	if GetConfig() != originalCfg {
		t.Error("original config should be preserved on reload failure")
	}
}

func TestGetConfig_ConcurrentWithReload(t *testing.T) {
	resetSingleton()

	configPath := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8787"
`)
	if err := Initialize(configPath); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	// Readers racing a reload must always observe a complete config,
	// old or new, never nil.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := GetConfig()
				if cfg == nil || cfg.Server.ListenAddress == "" {
					t.Error("reader observed an incomplete config during reload")
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if err := ReloadConfig(configPath); err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
	}
	wg.Wait()
}
