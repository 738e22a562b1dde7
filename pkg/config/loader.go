package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)(:-[^}]*)?\}`)

// LoadFromFile reads a YAML settings file, expanding ${VAR} and
// ${VAR:-default} references against the process environment before
// parsing, then layers the result onto Default().
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// substituteEnvVars expands ${NAME} and ${NAME:-default} references. An
// unset variable with no default expands to the empty string, matching
// the behavior operators expect from shell-style interpolation.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if len(groups) > 2 && len(groups[2]) > 2 {
			return groups[2][2:] // strip ":-"
		}
		return ""
	})
}
