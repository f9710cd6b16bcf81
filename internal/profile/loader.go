package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"rentl/internal/model"
)

// LoadDir reads every *.yaml profile in dir and resolves it against the
// registry. The result maps phases to their profile.
func LoadDir(dir string, registry *SchemaRegistry) (map[model.Phase]Resolved, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[model.Phase]Resolved{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[model.Phase]Resolved, len(names))
	for _, name := range names {
		resolved, err := LoadFile(filepath.Join(dir, name), registry)
		if err != nil {
			return nil, err
		}
		phase := model.Phase(resolved.Phase)
		if _, dup := out[phase]; dup {
			return nil, fmt.Errorf("duplicate profile for phase %s in %s", phase, name)
		}
		out[phase] = resolved
	}
	return out, nil
}

// LoadFile reads and resolves a single profile file.
func LoadFile(path string, registry *SchemaRegistry) (Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Resolved{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	resolved, err := registry.Resolve(p)
	if err != nil {
		return Resolved{}, fmt.Errorf("%s: %w", path, err)
	}
	return resolved, nil
}
