package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spotrip/internal/config"
	"spotrip/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %#v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func testConfig(t *testing.T, format string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.SettingsDir = filepath.Join(base, "settings")
	cfg.Encoding.Format = format
	return &cfg
}

func TestRunAllMissingEncoderIsFatal(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := testConfig(t, config.FormatMP3)

	results := RunAll(cfg)
	err := Err(results)
	if err == nil {
		t.Fatal("expected fatal preflight error")
	}
	if !errors.Is(err, services.ErrEncoderSpawn) {
		t.Fatalf("expected encoder spawn marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "Missing dependency 'lame'") {
		t.Fatalf("expected missing dependency message, got %v", err)
	}
}

func TestRunAllPassesForWAV(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := testConfig(t, config.FormatWAV)

	results := RunAll(cfg)
	if err := Err(results); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if _, err := os.Stat(cfg.Paths.OutputDir); err != nil {
		t.Fatalf("expected output dir to be created: %v", err)
	}
}

func TestRunAllWithStubEncoder(t *testing.T) {
	bin := t.TempDir()
	if err := os.WriteFile(filepath.Join(bin, "flac"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", bin)
	cfg := testConfig(t, config.FormatFLAC)

	results := RunAll(cfg)
	if err := Err(results); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(results[0].Detail, "flac") {
		t.Fatalf("expected resolved flac path, got %q", results[0].Detail)
	}
}
