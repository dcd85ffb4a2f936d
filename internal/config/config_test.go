package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Verifier.CargoBin != "cargo" {
		t.Errorf("Verifier.CargoBin = %q, want %q", cfg.Verifier.CargoBin, "cargo")
	}
	if cfg.Escalation.MaxAttempts != 3 {
		t.Errorf("Escalation.MaxAttempts = %d, want 3", cfg.Escalation.MaxAttempts)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgen.yaml")

	t.Setenv("TEST_GEMINI_KEY", "key-abc123")

	yaml := `
log_level: debug
spec_root: mappings
verifier:
  timeout_seconds: 30
  keep_crates: true
escalation:
  max_attempts: 5
  api_key: "${TEST_GEMINI_KEY}"
  github:
    owner: crossffi
    repo: bridgen
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.SpecRoot != "mappings" {
		t.Errorf("SpecRoot = %q, want %q", cfg.SpecRoot, "mappings")
	}
	if cfg.Verifier.TimeoutSeconds != 30 {
		t.Errorf("Verifier.TimeoutSeconds = %d, want 30", cfg.Verifier.TimeoutSeconds)
	}
	if !cfg.Verifier.KeepCrates {
		t.Error("Verifier.KeepCrates should be true")
	}
	if cfg.Verifier.CargoBin != "cargo" {
		t.Errorf("unset keys must keep defaults, CargoBin = %q", cfg.Verifier.CargoBin)
	}
	if cfg.Escalation.MaxAttempts != 5 {
		t.Errorf("Escalation.MaxAttempts = %d, want 5", cfg.Escalation.MaxAttempts)
	}
	if cfg.Escalation.APIKey != "key-abc123" {
		t.Errorf("Escalation.APIKey = %q, want interpolated value", cfg.Escalation.APIKey)
	}
	if cfg.Escalation.GitHub.Owner != "crossffi" || cfg.Escalation.GitHub.Repo != "bridgen" {
		t.Errorf("Escalation.GitHub = %+v", cfg.Escalation.GitHub)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/bridgen.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.WorkDir != "/tmp/bridgen" {
		t.Errorf("WorkDir = %q, want default %q", cfg.WorkDir, "/tmp/bridgen")
	}
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("NUM_123", "456")

	tests := []struct {
		input string
		want  string
	}{
		{"${FOO}", "bar"},
		{"prefix-${FOO}-suffix", "prefix-bar-suffix"},
		{"${UNSET_VAR}", "${UNSET_VAR}"}, // unresolved stays
		{"${FOO} and ${NUM_123}", "bar and 456"},
		{"no vars here", "no vars here"},
	}

	for _, tt := range tests {
		got := interpolateEnvVars(tt.input)
		if got != tt.want {
			t.Errorf("interpolateEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
