package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/supportbase/mcpcollect/config"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.ServerHost != "localhost" || cfg.ServerPort != 9000 {
			t.Errorf("unexpected server defaults: %s:%d", cfg.ServerHost, cfg.ServerPort)
		}
		if cfg.URL() != "http://localhost:9000/mcp" {
			t.Errorf("unexpected URL: %s", cfg.URL())
		}
		if cfg.TimeoutSeconds != 30 {
			t.Errorf("unexpected timeout: %d", cfg.TimeoutSeconds)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("MCP_SERVER_HOST", "gateway.internal")
		t.Setenv("MCP_SERVER_PORT", "8443")
		t.Setenv("MCP_SERVER_PROTOCOL", "https")

		cfg, err := config.Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.URL() != "https://gateway.internal:8443/mcp" {
			t.Errorf("unexpected URL: %s", cfg.URL())
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "server_host: filehost\nserver_port: 7000\njira_max_results: 100\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.ServerHost != "filehost" || cfg.ServerPort != 7000 {
			t.Errorf("file values not applied: %s:%d", cfg.ServerHost, cfg.ServerPort)
		}
		if cfg.JiraMaxResults != 100 {
			t.Errorf("expected jira_max_results 100, got %d", cfg.JiraMaxResults)
		}
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("url handles base path without slash", func(t *testing.T) {
		cfg, err := config.Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		cfg.BasePath = "mcp/"
		if cfg.URL() != "http://localhost:9000/mcp" {
			t.Errorf("unexpected URL: %s", cfg.URL())
		}
	})
}
