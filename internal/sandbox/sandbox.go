// Package sandbox confines harness execution: generated crates may only be
// materialized under approved roots, generated sources are size-capped, and
// cargo runs under a wall-clock deadline.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Sandbox validates filesystem operations for the verifier: where temporary
// crates may be written and how large a generated source may grow.
type Sandbox struct {
	allowedRoots []string
	deniedPaths  []string
	maxFileSize  int64 // bytes, 0 means unlimited
}

// Config holds the sandbox configuration.
type Config struct {
	AllowedRoots []string
	DeniedPaths  []string
	MaxFileSize  string // e.g. "10MB", "512KB"
}

// New creates a Sandbox from the given configuration. Roots and denied
// paths are resolved to absolute paths.
func New(cfg Config) (*Sandbox, error) {
	s := &Sandbox{}

	for _, p := range cfg.AllowedRoots {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve allowed root %q: %w", p, err)
		}
		s.allowedRoots = append(s.allowedRoots, abs)
	}

	for _, p := range cfg.DeniedPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve denied path %q: %w", p, err)
		}
		s.deniedPaths = append(s.deniedPaths, abs)
	}

	if cfg.MaxFileSize != "" {
		size, err := parseFileSize(cfg.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse max_file_size %q: %w", cfg.MaxFileSize, err)
		}
		s.maxFileSize = size
	}

	return s, nil
}

// CheckCrateDir validates that a crate directory may be created at the given
// path. Deny takes precedence; with no allowed roots configured, any
// non-denied path is acceptable.
func (s *Sandbox) CheckCrateDir(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("sandbox: resolve path %q: %w", path, err)
	}

	for _, denied := range s.deniedPaths {
		if abs == denied || strings.HasPrefix(abs, denied+string(filepath.Separator)) {
			return fmt.Errorf("sandbox: path %q is under denied path %q", abs, denied)
		}
	}

	if len(s.allowedRoots) == 0 {
		return nil
	}

	for _, root := range s.allowedRoots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("sandbox: path %q is not under any allowed root %v", abs, s.allowedRoots)
}

// CheckFileSize validates that a generated source of the given size may be
// written. Returns nil when no limit is configured.
func (s *Sandbox) CheckFileSize(size int64) error {
	if s.maxFileSize <= 0 {
		return nil
	}
	if size > s.maxFileSize {
		return fmt.Errorf("sandbox: generated source of %d bytes exceeds maximum %d bytes (%s)",
			size, s.maxFileSize, formatFileSize(s.maxFileSize))
	}
	return nil
}

// MaxFileSize returns the configured maximum file size in bytes, 0 when
// unlimited.
func (s *Sandbox) MaxFileSize() int64 {
	return s.maxFileSize
}

// AllowedRoots returns the list of allowed absolute roots.
func (s *Sandbox) AllowedRoots() []string {
	return s.allowedRoots
}

// parseFileSize parses a human-readable file size string into bytes.
// Supported suffixes: B, KB, MB, GB, TB (case-insensitive).
func parseFileSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	// No suffix, assume bytes.
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file size %q", s)
	}
	return n, nil
}

// formatFileSize formats bytes into a human-readable string.
func formatFileSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)
	switch {
	case bytes >= tb:
		return fmt.Sprintf("%.1fTB", float64(bytes)/float64(tb))
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
