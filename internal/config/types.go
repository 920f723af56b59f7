// Package config provides the lens service configuration: where to listen,
// how to reach the application database, and how to talk to the language
// model provider.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig holds the application database connection settings. This is
// the service's own store, not a project's target database.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
}

// DSN builds the MySQL connection string for the application database.
func (d DatabaseConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	mc.User = d.User
	mc.Passwd = d.Password
	mc.DBName = d.Name
	mc.ParseTime = true
	mc.MultiStatements = true
	return mc.FormatDSN()
}

// LLMConfig holds the language model provider settings.
type LLMConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	Model          string `koanf:"model"`
	SiteURL        string `koanf:"site_url"`
	SiteName       string `koanf:"site_name"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxTokens      int    `koanf:"max_tokens"`
}

// Timeout returns the request timeout as a duration.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret       string `koanf:"jwt_secret"`
	TokenTTLMinutes int    `koanf:"token_ttl_minutes"`
}

// TokenTTL returns the token lifetime as a duration.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	LLM      LLMConfig      `koanf:"llm"`
	Auth     AuthConfig     `koanf:"auth"`
	Verbose  bool           `koanf:"verbose"`
}

// Validate checks that the settings a running service cannot do without are
// present.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	return nil
}
