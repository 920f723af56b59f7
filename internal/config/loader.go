package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/quantum-lens/lens/internal/llm"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "lens.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "lens.yml"

// envPrefix is the environment variable prefix. A double underscore separates
// nesting levels so keys like llm.api_key stay addressable:
// LENS_LLM__API_KEY -> llm.api_key.
const envPrefix = "LENS_"

// findConfigFile finds the config file to use.
// Priority: explicit path > lens.yaml > lens.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// Load loads configuration from file and environment variables.
// Precedence (highest to lowest): env vars > config file > defaults.
// A missing config file is not an error; defaults and env vars still apply.
func Load(cfgFile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"server.host":            "0.0.0.0",
		"server.port":            8000,
		"database.host":          "localhost",
		"database.port":          3306,
		"llm.base_url":           llm.DefaultBaseURL,
		"llm.model":              llm.DefaultModel,
		"llm.timeout_seconds":    60,
		"llm.max_tokens":         llm.DefaultMaxTokens,
		"auth.token_ttl_minutes": 60 * 24,
		"verbose":                false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if configFile := findConfigFile(cfgFile); configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. Environment variables (LENS_ prefix)
	// Transform: LENS_LLM__API_KEY -> llm.api_key
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	expandSecretEnvVars(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandSecretEnvVars expands environment variables in sensitive fields, so a
// committed lens.yaml can reference ${OPENROUTER_API_KEY} instead of the key
// itself.
func expandSecretEnvVars(cfg *Config) {
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Auth.JWTSecret = expandEnvVars(cfg.Auth.JWTSecret)
	cfg.Database.User = expandEnvVars(cfg.Database.User)
	cfg.Database.Password = expandEnvVars(cfg.Database.Password)
}
