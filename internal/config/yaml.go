package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level keygate configuration file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Keys    KeysConfig    `yaml:"keys"`
	MCP     MCPConfig     `yaml:"mcp"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// AuthConfig controls the administrative gate.
type AuthConfig struct {
	// AdminSecret is the shared secret guarding create, bulk-create, list,
	// and delete. Leave empty to use the hashed secret from the settings
	// store (set via `keygate secret set`).
	AdminSecret string `yaml:"admin_secret"`
	JWTSecret   string `yaml:"jwt_secret"`
	JWTExpiry   string `yaml:"jwt_expiry"`
}

// KeysConfig controls key issuance and expiry sweeping.
type KeysConfig struct {
	Prefix               string `yaml:"prefix"`
	DefaultDurationHours int    `yaml:"default_duration_hours"`
	SweepInterval        string `yaml:"sweep_interval"`
}

// MCPConfig holds defaults for the `keygate mcp` command. Flags passed to
// the command take precedence.
type MCPConfig struct {
	Transport string `yaml:"transport"` // stdio or http
	HTTPAddr  string `yaml:"http_addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing, so secrets can stay out of the file itself.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		Keys: KeysConfig{
			Prefix:               "KG",
			DefaultDurationHours: 24,
			SweepInterval:        "1h",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			HTTPAddr:  ":3001",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
