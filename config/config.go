package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the settings for a padding oracle run.
type Config struct {
	// Oracle settings
	Oracle OracleConfig `json:"oracle"`

	// Attack settings
	Attack AttackConfig `json:"attack"`

	// Logging settings
	Logging LoggingConfig `json:"logging"`
}

type OracleConfig struct {
	Cipher  string `json:"cipher"`             // aes, aesgo
	KeySeed string `json:"key_seed,omitempty"` // hex; empty means a random key
}

type AttackConfig struct {
	Message string `json:"message"`
	Workers int    `json:"workers"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Cipher: "aes",
		},
		Attack: AttackConfig{
			Message: "Long Secret Message",
			Workers: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file with environment variable overrides.
// A missing file is not an error; defaults are used instead.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("PADORACLE_CIPHER"); val != "" {
		c.Oracle.Cipher = val
	}
	if val := os.Getenv("PADORACLE_KEY_SEED"); val != "" {
		c.Oracle.KeySeed = val
	}

	if val := os.Getenv("PADORACLE_MESSAGE"); val != "" {
		c.Attack.Message = val
	}
	if val := os.Getenv("PADORACLE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil {
			c.Attack.Workers = workers
		}
	}

	if val := os.Getenv("PADORACLE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("PADORACLE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	validCiphers := map[string]bool{
		"aes": true, "aesgo": true,
	}
	if !validCiphers[c.Oracle.Cipher] {
		return fmt.Errorf("invalid cipher '%s'. Valid options: aes, aesgo", c.Oracle.Cipher)
	}
	if c.Oracle.KeySeed != "" {
		if _, err := hex.DecodeString(c.Oracle.KeySeed); err != nil {
			return fmt.Errorf("key seed must be hex encoded: %w", err)
		}
	}

	if c.Attack.Workers <= 0 {
		return fmt.Errorf("workers must be positive (current: %d). Use 1 for a sequential attack", c.Attack.Workers)
	}
	if c.Attack.Workers > 256 {
		return fmt.Errorf("workers is very high (%d). Blocks are recovered one per worker, so more workers than blocks gain nothing", c.Attack.Workers)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s'. Valid options: debug, info, warn, error", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format '%s'. Valid options: text, json", c.Logging.Format)
	}

	return nil
}

// Seed returns the decoded key seed, or nil when the key should be random.
func (c *Config) Seed() []byte {
	if c.Oracle.KeySeed == "" {
		return nil
	}
	seed, err := hex.DecodeString(c.Oracle.KeySeed)
	if err != nil {
		return nil
	}
	return seed
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
