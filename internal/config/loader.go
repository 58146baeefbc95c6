package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// LoadConfig loads, defaults and returns the configuration at path. The
// result is not validated.
func LoadConfig(path string) (*EgressConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is validated via filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Relative CA files are resolved against the config file's directory.
	if ca := cfg.Spec.Trust.CAFile; ca != "" && !filepath.IsAbs(ca) {
		cfg.Spec.Trust.CAFile = filepath.Join(filepath.Dir(absPath), ca)
	}
	return cfg, nil
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*EgressConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(data)
}

// parseConfig parses YAML data into an EgressConfig.
func parseConfig(data []byte) (*EgressConfig, error) {
	content := substituteEnvVars(string(data))

	var config EgressConfig
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment variable values.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// ResolveConfigPath resolves a configuration file path, checking common locations.
func ResolveConfigPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("config file not found: %s", path)
	}

	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}

	etcPath := filepath.Join(string(filepath.Separator), "etc", "avaegress")
	commonPaths := []string{
		filepath.Join("configs", path),
		filepath.Join(etcPath, path),
	}
	if home, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(home, ".avaegress", path))
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("config file not found: %s", path)
}
