package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writePack writes a pack fragment into dir and returns its path.
func writePack(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestFileSourceSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "pack.yaml", `
frequency:
  cap: 2
  window: 72h
financial:
  auto_approve_max_percent: 10
  absolute_max_percent: 25
`)

	source := NewFileSource(path, nil)
	pack, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if pack.Frequency.Cap != 2 || pack.Frequency.Window != 72*time.Hour {
		t.Errorf("frequency not applied: %+v", pack.Frequency)
	}
	if pack.Financial.AbsoluteMaxPercent != 25 {
		t.Errorf("financial not applied: %+v", pack.Financial)
	}

	// Absent sections keep defaults.
	if pack.Tone.MinScore != 0.85 {
		t.Errorf("tone default lost: %+v", pack.Tone)
	}
	if !pack.Consent.Required {
		t.Error("consent default lost")
	}
}

func TestFileSourceDirectoryMerge(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "10-base.yaml", `
frequency:
  cap: 5
spam:
  max_score: 0.5
`)
	writePack(t, dir, "20-override.yml", `
frequency:
  cap: 2
`)
	writePack(t, dir, "ignored.txt", "not yaml")
	writePack(t, dir, ".hidden.yaml", "frequency: {cap: 99}")

	source := NewFileSource(dir, nil)
	pack, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if pack.Frequency.Cap != 2 {
		t.Errorf("later file should win: cap = %d, want 2", pack.Frequency.Cap)
	}
	if pack.Spam.MaxScore != 0.5 {
		t.Errorf("earlier file's untouched field lost: %v", pack.Spam.MaxScore)
	}
}

func TestFileSourceVersionDigest(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "pack.yaml", "frequency: {cap: 4}\n")

	source := NewFileSource(path, nil)
	first, err := source.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if first.Version.Source != "file" || first.Version.Digest == "" {
		t.Fatalf("version not stamped: %+v", first.Version)
	}

	second, _ := source.Load(context.Background())
	if first.Version.Digest != second.Version.Digest {
		t.Error("digest should be stable for unchanged bytes")
	}

	writePack(t, dir, "pack.yaml", "frequency: {cap: 5}\n")
	third, _ := source.Load(context.Background())
	if third.Version.Digest == first.Version.Digest {
		t.Error("digest should change with the pack bytes")
	}
}

func TestFileSourceInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "pack.yaml", "frequency: [not a map")

	source := NewFileSource(path, nil)
	_, err := source.Load(context.Background())

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() = %v, want *LoadError", err)
	}
}

func TestFileSourceInvalidLimits(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "pack.yaml", "frequency: {cap: -1}\n")

	source := NewFileSource(path, nil)
	_, err := source.Load(context.Background())
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Load() = %v, want wrapped *ValidationError", err)
	}
}

func TestFileSourceMissingPath(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileSourceEmptyDirectory(t *testing.T) {
	source := NewFileSource(t.TempDir(), nil)
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("expected error for directory without packs")
	}
}
