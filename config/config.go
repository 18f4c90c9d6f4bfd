// Package config loads runtime settings from environment variables and
// an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the collector CLI needs to reach the MCP
// gateway and persist what it pulls.
type Config struct {
	ServerHost     string `mapstructure:"server_host"`
	ServerPort     int    `mapstructure:"server_port"`
	ServerProtocol string `mapstructure:"server_protocol"`
	BasePath       string `mapstructure:"base_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`

	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	JiraJQL        string `mapstructure:"jira_jql"`
	JiraMaxResults int    `mapstructure:"jira_max_results"`
	ConfluenceCQL  string `mapstructure:"confluence_cql"`
	RateLimit      int    `mapstructure:"rate_limit"`
	RateBurst      int    `mapstructure:"rate_burst"`
}

// URL composes the gateway endpoint from host, port, protocol and base
// path.
func (c *Config) URL() string {
	base := strings.TrimSuffix(c.BasePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return fmt.Sprintf("%s://%s:%d%s", c.ServerProtocol, c.ServerHost, c.ServerPort, base)
}

// Load reads configuration from the environment (MCP_* variables) and,
// when path is non-empty, from the given config file. File values are
// overridden by the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mcp")
	v.AutomaticEnv()

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_port", 9000)
	v.SetDefault("server_protocol", "http")
	v.SetDefault("base_path", "/mcp")
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("db_path", "mcpcollect.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("jira_jql", "")
	v.SetDefault("jira_max_results", 50)
	v.SetDefault("confluence_cql", "")
	v.SetDefault("rate_limit", 10)
	v.SetDefault("rate_burst", 5)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
