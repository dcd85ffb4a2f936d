package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the runtime configuration from bridgen.yaml.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	SpecRoot   string           `yaml:"spec_root"`
	WorkDir    string           `yaml:"work_dir"`
	Registry   RegistryConfig   `yaml:"registry"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Escalation EscalationConfig `yaml:"escalation"`
}

// RegistryConfig defines converter persistence settings.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// SandboxConfig defines filesystem restrictions for harness crates.
type SandboxConfig struct {
	AllowedRoots []string `yaml:"allowed_roots"`
	DeniedPaths  []string `yaml:"denied_paths"`
	MaxFileSize  string   `yaml:"max_file_size"`
}

// VerifierConfig defines roundtrip verification defaults.
type VerifierConfig struct {
	CargoBin       string `yaml:"cargo_bin"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SamplesPath    string `yaml:"samples_path"`
	KeepCrates     bool   `yaml:"keep_crates"`
	Workers        int    `yaml:"workers"`
}

// EscalationConfig defines the collaborator correction loop.
type EscalationConfig struct {
	MaxAttempts int          `yaml:"max_attempts"`
	Model       string       `yaml:"model"`
	APIKey      string       `yaml:"api_key"`
	GitHub      GitHubConfig `yaml:"github"`
}

// GitHubConfig holds the issue reporter target for exhausted specs.
type GitHubConfig struct {
	Token string `yaml:"token"`
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		SpecRoot: "specs",
		WorkDir:  "/tmp/bridgen",
		Registry: RegistryConfig{
			Path: ".bridgen/registry.db",
		},
		Sandbox: SandboxConfig{
			AllowedRoots: []string{"/tmp/bridgen"},
			DeniedPaths:  []string{"/etc", "/usr"},
			MaxFileSize:  "10MB",
		},
		Verifier: VerifierConfig{
			CargoBin:       "cargo",
			TimeoutSeconds: 120,
			Workers:        4,
		},
		Escalation: EscalationConfig{
			MaxAttempts: 3,
			Model:       "gemini-2.0-flash",
		},
	}
}

// LoadConfig reads and parses a runtime config YAML file, interpolating
// ${VAR} references from the environment so credentials stay out of the
// file. Returns default config if the file doesn't exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	interpolated := interpolateEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
