package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandConfig binds one command type of a domain to a local program.
type CommandConfig struct {
	Domain      string            `yaml:"domain" json:"domain"`
	CommandType string            `yaml:"command_type" json:"command_type"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// Key is the registry key, "domain/CommandType".
func (c CommandConfig) Key() string {
	return c.Domain + "/" + c.CommandType
}

// ConfigFile represents the structure of commands.yaml.
type ConfigFile struct {
	Commands []CommandConfig `yaml:"commands" json:"commands"`
}

// LoadCommands reads a YAML or JSON configuration file.
// A missing file yields an empty configuration.
func LoadCommands(path string) ([]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read commands config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	var out []CommandConfig
	for i, c := range cfg.Commands {
		if c.Domain == "" || c.CommandType == "" || c.Command == "" {
			return nil, fmt.Errorf("command %d: domain, command_type and command are required", i)
		}
		out = append(out, c)
	}
	return out, nil
}
