package config

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/billm/imulink/pkg/types"
)

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(:-([^}]*))?\}`)

// interpolateEnvVars replaces environment variable placeholders with their values
// Supports ${VAR_NAME} and ${VAR_NAME:-default_value} syntax
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) >= 4 && parts[3] != "" {
			defaultValue = parts[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// fileFormat identifies a supported configuration syntax
type fileFormat int

const (
	formatYAML fileFormat = iota
	formatTOML
)

// detectFormat checks the file path and returns its syntax from the extension
func detectFormat(path string) (fileFormat, error) {
	if path == "" {
		return 0, types.NewError(types.ErrCodeConfig, "configuration file path cannot be empty")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	default:
		return 0, types.NewError(types.ErrCodeConfig,
			"configuration file must have .yaml, .yml, or .toml extension, got: "+ext)
	}
}

// validateContent rejects empty documents before parsing
func validateContent(data []byte, path string) error {
	if len(data) == 0 {
		return types.NewError(types.ErrCodeConfig, "configuration file is empty: "+path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return types.NewError(types.ErrCodeConfig, "configuration file contains only whitespace: "+path)
	}
	return nil
}

// decode parses data over cfg so fields absent from the file keep their defaults
func decode(data []byte, format fileFormat, path string, cfg *Config) error {
	switch format {
	case formatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			var perr toml.ParseError
			if errors.As(err, &perr) {
				return types.WrapError(types.ErrCodeConfig, "invalid TOML syntax in "+path, errors.New(perr.ErrorWithPosition()))
			}
			return types.WrapError(types.ErrCodeConfig, "failed to parse TOML configuration from "+path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			var terr *yaml.TypeError
			if errors.As(err, &terr) {
				return types.WrapError(types.ErrCodeConfig, "YAML type error in "+path, terr)
			}
			return types.WrapError(types.ErrCodeConfig, "failed to parse YAML configuration from "+path, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or TOML file. Values not set
// in the file keep their defaults; IMULINK_* environment variables are then
// applied on top. Role-specific validation is left to the caller.
func LoadFromFile(path string) (*Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.ErrCodeNotFound, "configuration file not found: "+path, err)
		}
		return nil, types.WrapError(types.ErrCodeConfig, "failed to read configuration file: "+path, err)
	}

	if err := validateContent(data, path); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := decode(data, format, path, cfg); err != nil {
		return nil, err
	}

	interpolateEnvVarsInConfig(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load returns the configuration from path, or defaults plus environment
// overrides when path is empty
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// interpolateEnvVarsInConfig interpolates environment variables in all string fields
func interpolateEnvVarsInConfig(cfg *Config) {
	cfg.Logging.Level = interpolateEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = interpolateEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = interpolateEnvVars(cfg.Logging.Output)

	cfg.Endpoint.SocketPath = interpolateEnvVars(cfg.Endpoint.SocketPath)

	cfg.Producer.Source = interpolateEnvVars(cfg.Producer.Source)
	cfg.Producer.ReplayFile = interpolateEnvVars(cfg.Producer.ReplayFile)

	cfg.MQTT.Broker = interpolateEnvVars(cfg.MQTT.Broker)
	cfg.MQTT.ClientID = interpolateEnvVars(cfg.MQTT.ClientID)
	cfg.MQTT.Topic = interpolateEnvVars(cfg.MQTT.Topic)
}
