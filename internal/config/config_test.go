package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.WorkspaceRoot != "." {
		t.Errorf("WorkspaceRoot = %q, want %q", cfg.WorkspaceRoot, ".")
	}

	// Healing is opt-in
	if cfg.Editor.HealerURL != "" {
		t.Errorf("HealerURL = %q, want empty (disabled)", cfg.Editor.HealerURL)
	}
	if cfg.Editor.HealerTimeoutMs <= 0 {
		t.Error("HealerTimeoutMs should be positive")
	}
	if !cfg.Editor.FallbackEnabled {
		t.Error("FallbackEnabled should default to true")
	}

	if cfg.Jobs.MaxConcurrent <= 0 {
		t.Error("MaxConcurrent should be positive")
	}
	if cfg.Jobs.DefaultTimeoutSecs > cfg.Jobs.MaxTimeoutSecs {
		t.Error("DefaultTimeoutSecs should not exceed MaxTimeoutSecs")
	}
	if cfg.Jobs.LogTailLines != 20 {
		t.Errorf("LogTailLines = %d, want 20", cfg.Jobs.LogTailLines)
	}

	if cfg.Logging.Format != "human" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "human")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad version", func(c *Config) { c.Version = 9 }, true},
		{"zero healer timeout", func(c *Config) { c.Editor.HealerTimeoutMs = 0 }, true},
		{"zero max file size", func(c *Config) { c.Editor.MaxFileSizeBytes = 0 }, true},
		{"zero workers", func(c *Config) { c.Jobs.MaxConcurrent = 0 }, true},
		{"zero queue", func(c *Config) { c.Jobs.QueueSize = 0 }, true},
		{"timeout above max", func(c *Config) { c.Jobs.DefaultTimeoutSecs = c.Jobs.MaxTimeoutSecs + 1 }, true},
		{"zero tail", func(c *Config) { c.Jobs.LogTailLines = 0 }, true},
		{"zero retention", func(c *Config) { c.Jobs.RetentionHours = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "jobs.maxConcurrent", Message: "need at least one worker"}

	got := err.Error()
	want := "config error in field 'jobs.maxConcurrent': need at least one worker"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	// Load from a directory with no .cme/config.json
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want default 1", cfg.Version)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want default 4", cfg.Jobs.MaxConcurrent)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	cmeDir := filepath.Join(dir, ".cme")
	if err := os.MkdirAll(cmeDir, 0755); err != nil {
		t.Fatal(err)
	}

	content := `{
  "version": 1,
  "editor": {
    "healerUrl": "http://127.0.0.1:1234/v1/chat/completions",
    "healerTimeoutMs": 5000
  },
  "jobs": {
    "maxConcurrent": 2
  }
}`
	if err := os.WriteFile(filepath.Join(cmeDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Editor.HealerURL != "http://127.0.0.1:1234/v1/chat/completions" {
		t.Errorf("HealerURL = %q, not taken from file", cfg.Editor.HealerURL)
	}
	if cfg.Editor.HealerTimeoutMs != 5000 {
		t.Errorf("HealerTimeoutMs = %d, want 5000", cfg.Editor.HealerTimeoutMs)
	}
	if cfg.Jobs.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.Jobs.MaxConcurrent)
	}

	// Fields absent from the file keep their defaults
	if cfg.Jobs.QueueSize != 64 {
		t.Errorf("QueueSize = %d, want default 64", cfg.Jobs.QueueSize)
	}
	if cfg.Jobs.LogTailLines != 20 {
		t.Errorf("LogTailLines = %d, want default 20", cfg.Jobs.LogTailLines)
	}
}

func TestConfig_Save(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".cme"), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Editor.HealerURL = "http://localhost:9999/v1/chat/completions"
	cfg.Jobs.MaxConcurrent = 8

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() after Save error = %v", err)
	}
	if loaded.Editor.HealerURL != cfg.Editor.HealerURL {
		t.Errorf("HealerURL = %q, want %q", loaded.Editor.HealerURL, cfg.Editor.HealerURL)
	}
	if loaded.Jobs.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8", loaded.Jobs.MaxConcurrent)
	}
}

func TestSave_ErrorHandling(t *testing.T) {
	// Saving into a directory without .cme should fail
	cfg := DefaultConfig()

	err := cfg.Save(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("Save() into missing directory should fail")
	}
}
