package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact kind directories under the spec root.
const (
	DirStructs   = "structs"
	DirFunctions = "functions"
)

// ArtifactPath returns the deterministic path for a persisted spec:
// <root>/<structs|functions>/<name>.json.
func ArtifactPath(root, kind, name string) string {
	return filepath.Join(root, kind, name+".json")
}

// Save persists a raw spec document at its deterministic path. Saving over
// an existing artifact produces the corrected version; artifacts are never
// edited in place.
func Save(root, kind, name string, raw []byte) error {
	dir := filepath.Join(root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spec dir %s: %w", dir, err)
	}
	path := ArtifactPath(root, kind, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write spec %s: %w", path, err)
	}
	return nil
}

// LoadStruct reads and parses a persisted struct spec by name.
func LoadStruct(root, name string) (*StructSpec, error) {
	path := ArtifactPath(root, DirStructs, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	return ParseStruct(data)
}

// LoadFunction reads and parses a persisted function spec by name.
func LoadFunction(root, name string) (*FunctionSpec, error) {
	path := ArtifactPath(root, DirFunctions, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	return ParseFunction(data)
}

// ListStructs returns the names of all persisted struct specs under root.
func ListStructs(root string) ([]string, error) {
	return listArtifacts(filepath.Join(root, DirStructs))
}

// ListFunctions returns the names of all persisted function specs under root.
func ListFunctions(root string) ([]string, error) {
	return listArtifacts(filepath.Join(root, DirFunctions))
}

func listArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list specs %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// Marshal renders a spec back to its canonical persisted form.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}
	return append(data, '\n'), nil
}
