package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DiagramAnalyzer.config")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Model.Name != "qwen2-vl-7b-instruct" {
		t.Errorf("default model = %q", cfg.Model.Name)
	}
	if !cfg.Storage.EnableHistory {
		t.Error("history must default to enabled")
	}
}

func TestLoadConfigRoundTripAndPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "DiagramAnalyzer.config")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Second load reads the file written by the first.
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if cfg.Storage.DataDirectory != filepath.Join(dir, "data") {
		t.Errorf("relative data dir not resolved: %q", cfg.Storage.DataDirectory)
	}
	want := filepath.Join(dir, "data", "history.duckdb")
	if got := cfg.GetHistoryPath(); got != want {
		t.Errorf("history path = %q, want %q", got, want)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("MODEL_NAME", "override-model")
	t.Setenv("LMSTUDIO_BASE_URL", "http://10.0.0.5:1234")

	path := filepath.Join(t.TempDir(), "DiagramAnalyzer.config")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("first load: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("PORT override ignored: %d", cfg.Server.Port)
	}
	if cfg.Model.Name != "override-model" {
		t.Errorf("MODEL_NAME override ignored: %q", cfg.Model.Name)
	}
	if cfg.Model.BaseURL != "http://10.0.0.5:1234" {
		t.Errorf("LMSTUDIO_BASE_URL override ignored: %q", cfg.Model.BaseURL)
	}
	if cfg.GetServerAddr() != "0.0.0.0:9100" {
		t.Errorf("server addr = %q", cfg.GetServerAddr())
	}
}
