package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid JSON config",
			config:  Config{Level: "info", Format: "json"},
			wantErr: false,
		},
		{
			name:    "valid text config",
			config:  Config{Level: "debug", Format: "text"},
			wantErr: false,
		},
		{
			name:    "empty strings default to info JSON",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			config:  Config{Level: "invalid", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "info", Format: "invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.config.Writer = buf

			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger without error")
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "warn", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Debug("drop me")
	logger.Info("drop me too")
	logger.Warn("keep me")
	logger.Error("keep me too")

	out := buf.String()
	if strings.Contains(out, "drop me") {
		t.Errorf("below-level messages were logged: %s", out)
	}
	if !strings.Contains(out, "keep me") || !strings.Contains(out, "keep me too") {
		t.Errorf("at-level messages were filtered: %s", out)
	}
}

func TestNew_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("decision recorded", "action_id", "act-1", "verdict", "APPROVED")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "decision recorded" {
		t.Errorf("expected msg %q, got %v", "decision recorded", record["msg"])
	}
	if record["action_id"] != "act-1" {
		t.Errorf("expected action_id %q, got %v", "act-1", record["action_id"])
	}
	if record["verdict"] != "APPROVED" {
		t.Errorf("expected verdict %q, got %v", "APPROVED", record["verdict"])
	}
}

func TestNew_TextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "text", Writer: buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("pack loaded", "version", "file:feedfacefeed")

	out := buf.String()
	if !strings.Contains(out, "msg=\"pack loaded\"") {
		t.Errorf("expected logfmt output, got: %s", out)
	}
	if !strings.Contains(out, "version=file:feedfacefeed") {
		t.Errorf("expected version attribute, got: %s", out)
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &bytes.Buffer{}
	logger, err := Setup(Config{Level: "info", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if slog.Default() != logger {
		t.Error("Setup() did not install the logger as default")
	}

	slog.Info("through the default")
	if !strings.Contains(buf.String(), "through the default") {
		t.Errorf("default logger did not write to configured writer: %s", buf.String())
	}
}

func TestComponent(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &bytes.Buffer{}
	if _, err := Setup(Config{Level: "info", Format: "json", Writer: buf}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	Component("guardrail").Info("check registered", "check", "tone")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["component"] != "guardrail" {
		t.Errorf("expected component %q, got %v", "guardrail", record["component"])
	}
}
