package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/supportbase/mcpcollect/records"
)

const (
	toolJiraSearch   = "jira_search"
	toolJiraGetIssue = "jira_get_issue"

	// DefaultJQL collects the most recently touched issues first.
	DefaultJQL = "ORDER BY updated DESC"

	defaultMaxResults = 50
)

// JiraCollector pulls issues through the gateway's Jira tools.
type JiraCollector struct {
	caller ToolCaller
	opts   options
}

// NewJira creates a Jira collector over the given tool caller.
func NewJira(caller ToolCaller, opts ...Option) *JiraCollector {
	return &JiraCollector{caller: caller, opts: newOptions(opts)}
}

// BuildJQL composes a JQL query from optional project and status
// filters, always ordering by most recent update.
func BuildJQL(project, status string) string {
	var clauses []string
	if project != "" {
		clauses = append(clauses, fmt.Sprintf("project = %q", project))
	}
	if status != "" {
		clauses = append(clauses, fmt.Sprintf("status = %q", status))
	}
	if len(clauses) == 0 {
		return DefaultJQL
	}
	return strings.Join(clauses, " AND ") + " " + DefaultJQL
}

// CollectIssues runs a JQL search and returns the parsed issues. An
// empty jql falls back to DefaultJQL and maxResults <= 0 falls back to
// the default page size. When a store is configured the issues are
// persisted before returning.
func (c *JiraCollector) CollectIssues(ctx context.Context, jql string, maxResults int) ([]records.JiraIssue, error) {
	if jql == "" {
		jql = DefaultJQL
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	if err := c.opts.throttle(ctx, "jira"); err != nil {
		return nil, err
	}

	res := c.caller.CallTool(ctx, toolJiraSearch, map[string]any{
		"jql":         jql,
		"max_results": maxResults,
	})
	text, err := resultText(res)
	if err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}

	issues, err := decodeRecords[records.JiraIssue](text)
	if err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}

	kept := issues[:0]
	for _, issue := range issues {
		if issue.Key == "" {
			c.opts.logger.Warn("skipping issue without key", "summary", issue.Summary)
			continue
		}
		kept = append(kept, issue)
	}
	issues = kept
	c.opts.logger.Info("collected jira issues", "count", len(issues), "jql", jql)

	if c.opts.store != nil && len(issues) > 0 {
		if _, err := c.opts.store.UpsertIssues(ctx, issues); err != nil {
			return nil, fmt.Errorf("persist issues: %w", err)
		}
	}
	return issues, nil
}

// GetIssue fetches a single issue by key.
func (c *JiraCollector) GetIssue(ctx context.Context, key string) (*records.JiraIssue, error) {
	if key == "" {
		return nil, fmt.Errorf("issue key is required")
	}
	if err := c.opts.throttle(ctx, "jira"); err != nil {
		return nil, err
	}

	res := c.caller.CallTool(ctx, toolJiraGetIssue, map[string]any{"issue_key": key})
	text, err := resultText(res)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}

	issues, err := decodeRecords[records.JiraIssue](text)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("get issue %s: empty result", key)
	}

	issue := issues[0]
	if c.opts.store != nil {
		if _, err := c.opts.store.UpsertIssues(ctx, []records.JiraIssue{issue}); err != nil {
			return nil, fmt.Errorf("persist issue %s: %w", key, err)
		}
	}
	return &issue, nil
}
