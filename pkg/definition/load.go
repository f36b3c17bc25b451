package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LoadFile reads and parses a template file.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadDir parses every .yaml, .yml and .json file in dir, sorted by file name.
// Duplicate saga names are rejected.
func LoadDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var templates []*Template
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("saga %q defined in both %s and %s", t.Name, prev, path)
		}
		seen[t.Name] = path
		templates = append(templates, t)
	}
	return templates, nil
}

// Load accepts a single template file or a directory of them.
func Load(path string) ([]*Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*Template{t}, nil
}

func isTemplateFile(name string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".json"}, strings.ToLower(filepath.Ext(name)))
}
