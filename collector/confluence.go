package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/supportbase/mcpcollect/records"
)

const (
	toolConfluenceSearch  = "confluence_search"
	toolConfluenceGetPage = "confluence_get_page"

	defaultPageLimit = 50
)

// ConfluenceCollector pulls pages through the gateway's Confluence
// tools.
type ConfluenceCollector struct {
	caller ToolCaller
	opts   options
}

// NewConfluence creates a Confluence collector over the given tool
// caller.
func NewConfluence(caller ToolCaller, opts ...Option) *ConfluenceCollector {
	return &ConfluenceCollector{caller: caller, opts: newOptions(opts)}
}

// BuildCQL composes a CQL query from a free-text term and an optional
// space key.
func BuildCQL(query, space string) string {
	var clauses []string
	if query != "" {
		clauses = append(clauses, fmt.Sprintf("text ~ %q", query))
	}
	if space != "" {
		clauses = append(clauses, fmt.Sprintf("space = %q", space))
	}
	return strings.Join(clauses, " AND ")
}

// CollectPages searches pages matching query, optionally scoped to a
// space, and returns the parsed results. limit <= 0 falls back to the
// default page size. When a store is configured the pages are persisted
// before returning.
func (c *ConfluenceCollector) CollectPages(ctx context.Context, query, space string, limit int) ([]records.ConfluencePage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	if err := c.opts.throttle(ctx, "confluence"); err != nil {
		return nil, err
	}

	args := map[string]any{"limit": limit}
	if cql := BuildCQL(query, space); cql != "" {
		args["cql"] = cql
	}

	res := c.caller.CallTool(ctx, toolConfluenceSearch, args)
	text, err := resultText(res)
	if err != nil {
		return nil, fmt.Errorf("confluence search: %w", err)
	}

	pages, err := decodeRecords[records.ConfluencePage](text)
	if err != nil {
		return nil, fmt.Errorf("confluence search: %w", err)
	}

	kept := pages[:0]
	for _, page := range pages {
		if page.ID == "" {
			c.opts.logger.Warn("skipping page without id", "title", page.Title)
			continue
		}
		kept = append(kept, page)
	}
	pages = kept
	c.opts.logger.Info("collected confluence pages", "count", len(pages), "space", space)

	if c.opts.store != nil && len(pages) > 0 {
		if _, err := c.opts.store.UpsertPages(ctx, pages); err != nil {
			return nil, fmt.Errorf("persist pages: %w", err)
		}
	}
	return pages, nil
}

// GetPage fetches a single page by id.
func (c *ConfluenceCollector) GetPage(ctx context.Context, id string) (*records.ConfluencePage, error) {
	if id == "" {
		return nil, fmt.Errorf("page id is required")
	}
	if err := c.opts.throttle(ctx, "confluence"); err != nil {
		return nil, err
	}

	res := c.caller.CallTool(ctx, toolConfluenceGetPage, map[string]any{"page_id": id})
	text, err := resultText(res)
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}

	pages, err := decodeRecords[records.ConfluencePage](text)
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("get page %s: empty result", id)
	}

	page := pages[0]
	if c.opts.store != nil {
		if _, err := c.opts.store.UpsertPages(ctx, []records.ConfluencePage{page}); err != nil {
			return nil, fmt.Errorf("persist page %s: %w", id, err)
		}
	}
	return &page, nil
}
