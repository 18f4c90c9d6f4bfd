// Command mcpcollect pulls Jira issues and Confluence pages out of an
// Atlassian MCP gateway into a local SQLite cache.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/supportbase/mcpcollect/client"
	"github.com/supportbase/mcpcollect/collector"
	"github.com/supportbase/mcpcollect/config"
	"github.com/supportbase/mcpcollect/store"
)

var (
	configPath string
	schedule   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mcpcollect",
		Short:        "Collect support data from an Atlassian MCP gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	collect := &cobra.Command{
		Use:   "collect",
		Short: "Pull records into the local cache",
	}
	collect.PersistentFlags().StringVar(&schedule, "schedule", "", "cron expression to run repeatedly (e.g. '@hourly')")
	collect.AddCommand(collectJiraCmd(), collectConfluenceCmd())

	root.AddCommand(healthCmd(), toolsCmd(), collect)
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

// setup loads config, builds the client and connects it. The returned
// cleanup disconnects.
func setup(ctx context.Context) (*config.Config, *client.Client, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)

	transport := client.NewHTTPTransport(cfg.URL(),
		client.WithHTTPTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	c := client.New(transport,
		client.WithLogger(logger),
		client.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))

	if err := c.Connect(ctx); err != nil {
		return nil, nil, nil, nil, err
	}
	cleanup := func() { c.Disconnect(context.Background()) }
	return cfg, c, logger, cleanup, nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the gateway answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			transport := client.NewHTTPTransport(cfg.URL(),
				client.WithHTTPTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
			c := client.New(transport, client.WithLogger(logger))
			defer c.Disconnect(context.Background())

			h := c.HealthCheck(cmd.Context())
			if !h.Healthy() {
				return fmt.Errorf("gateway unhealthy: %s", h.Err)
			}
			fmt.Printf("healthy (%s)\n", h.ResponseTime.Round(time.Millisecond))
			return nil
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the gateway exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, _, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			tools, err := c.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			for _, tool := range tools {
				fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
				for _, p := range tool.Parameters {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Printf("  - %s: %s%s\n", p.Name, p.Type, req)
				}
			}
			return nil
		},
	}
}

func collectJiraCmd() *cobra.Command {
	var jql string
	var maxResults int

	cmd := &cobra.Command{
		Use:   "jira",
		Short: "Collect Jira issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollection(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *client.Client, s *store.Store, logger *slog.Logger) error {
				if jql == "" {
					jql = cfg.JiraJQL
				}
				if maxResults <= 0 {
					maxResults = cfg.JiraMaxResults
				}
				jc := collector.NewJira(c,
					collector.WithStore(s),
					collector.WithLogger(logger),
					collector.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
				issues, err := jc.CollectIssues(ctx, jql, maxResults)
				if err != nil {
					return err
				}
				fmt.Printf("collected %d issues\n", len(issues))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query (defaults to most recently updated)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "maximum issues to collect")
	return cmd
}

func collectConfluenceCmd() *cobra.Command {
	var query, space string
	var limit int

	cmd := &cobra.Command{
		Use:   "confluence",
		Short: "Collect Confluence pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollection(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *client.Client, s *store.Store, logger *slog.Logger) error {
				cc := collector.NewConfluence(c,
					collector.WithStore(s),
					collector.WithLogger(logger),
					collector.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
				pages, err := cc.CollectPages(ctx, query, space, limit)
				if err != nil {
					return err
				}
				fmt.Printf("collected %d pages\n", len(pages))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "free-text search term")
	cmd.Flags().StringVar(&space, "space", "", "Confluence space key")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pages to collect")
	return cmd
}

type collectFunc func(ctx context.Context, cfg *config.Config, c *client.Client, s *store.Store, logger *slog.Logger) error

// runCollection connects, opens the store and runs fn once, or on the
// given cron schedule until interrupted.
func runCollection(ctx context.Context, fn collectFunc) error {
	cfg, c, logger, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if schedule == "" {
		return fn(ctx, cfg, c, s, logger)
	}

	runner := cron.New()
	_, err = runner.AddFunc(schedule, func() {
		if err := fn(ctx, cfg, c, s, logger); err != nil {
			logger.Error("scheduled collection failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger.Info("collection scheduled", "schedule", schedule)
	runner.Start()
	<-ctx.Done()
	stopCtx := runner.Stop()
	<-stopCtx.Done()
	return nil
}
