// Package store persists collected records in a local SQLite cache.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/supportbase/mcpcollect/records"
)

const schema = `
CREATE TABLE IF NOT EXISTS jira_issues (
	issue_key   TEXT PRIMARY KEY,
	summary     TEXT NOT NULL,
	description TEXT,
	status      TEXT,
	issue_type  TEXT,
	priority    TEXT,
	assignee    TEXT,
	reporter    TEXT,
	created_at  DATETIME,
	updated_at  DATETIME,
	labels      TEXT,
	components  TEXT,
	collected_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jira_updated_at ON jira_issues(updated_at);

CREATE TABLE IF NOT EXISTS confluence_pages (
	page_id     TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	space       TEXT,
	content     TEXT,
	version     INTEGER,
	author      TEXT,
	created_at  DATETIME,
	updated_at  DATETIME,
	labels      TEXT,
	collected_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_confluence_updated_at ON confluence_pages(updated_at);
`

// Store is a SQLite-backed cache of collected issues and pages.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache at the given file path.
func Open(path string) (*Store, error) {
	return open(fmt.Sprintf("file:%s?cache=shared", path))
}

// OpenMemory opens a private in-memory cache, used in tests.
func OpenMemory() (*Store, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// cache=shared requires a single connection to avoid table locks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertIssues inserts or refreshes issues keyed by issue key. Returns
// the number of rows written.
func (s *Store) UpsertIssues(ctx context.Context, issues []records.JiraIssue) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jira_issues
			(issue_key, summary, description, status, issue_type, priority,
			 assignee, reporter, created_at, updated_at, labels, components, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_key) DO UPDATE SET
			summary = excluded.summary,
			description = excluded.description,
			status = excluded.status,
			issue_type = excluded.issue_type,
			priority = excluded.priority,
			assignee = excluded.assignee,
			reporter = excluded.reporter,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			labels = excluded.labels,
			components = excluded.components,
			collected_at = excluded.collected_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int
	for _, issue := range issues {
		if issue.Key == "" {
			continue
		}
		labels, _ := json.Marshal(issue.Labels)
		components, _ := json.Marshal(issue.Components)
		if _, err := stmt.ExecContext(ctx,
			issue.Key, issue.Summary, issue.Description, issue.Status,
			issue.IssueType, issue.Priority, issue.Assignee, issue.Reporter,
			nullTime(issue.Created), nullTime(issue.Updated),
			string(labels), string(components), now,
		); err != nil {
			return n, fmt.Errorf("upsert issue %s: %w", issue.Key, err)
		}
		n++
	}
	return n, tx.Commit()
}

// Issues returns up to limit issues ordered by most recent update.
func (s *Store) Issues(ctx context.Context, limit int) ([]records.JiraIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_key, summary, description, status, issue_type, priority,
		       assignee, reporter, created_at, updated_at, labels, components
		FROM jira_issues
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []records.JiraIssue
	for rows.Next() {
		var issue records.JiraIssue
		var desc, issueType, priority, assignee, reporter sql.NullString
		var created, updated sql.NullTime
		var labels, components sql.NullString
		if err := rows.Scan(&issue.Key, &issue.Summary, &desc, &issue.Status,
			&issueType, &priority, &assignee, &reporter,
			&created, &updated, &labels, &components); err != nil {
			return nil, err
		}
		issue.Description = desc.String
		issue.IssueType = issueType.String
		issue.Priority = priority.String
		issue.Assignee = assignee.String
		issue.Reporter = reporter.String
		issue.Created = created.Time
		issue.Updated = updated.Time
		issue.Labels = decodeStrings(labels.String)
		issue.Components = decodeStrings(components.String)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// CountIssues returns the number of cached issues.
func (s *Store) CountIssues(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jira_issues`).Scan(&n)
	return n, err
}

// UpsertPages inserts or refreshes pages keyed by page id. Returns the
// number of rows written.
func (s *Store) UpsertPages(ctx context.Context, pages []records.ConfluencePage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO confluence_pages
			(page_id, title, space, content, version, author,
			 created_at, updated_at, labels, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			title = excluded.title,
			space = excluded.space,
			content = excluded.content,
			version = excluded.version,
			author = excluded.author,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			labels = excluded.labels,
			collected_at = excluded.collected_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int
	for _, page := range pages {
		if page.ID == "" {
			continue
		}
		labels, _ := json.Marshal(page.Labels)
		if _, err := stmt.ExecContext(ctx,
			page.ID, page.Title, page.Space, page.Content, page.Version,
			page.Author, nullTime(page.Created), nullTime(page.Updated),
			string(labels), now,
		); err != nil {
			return n, fmt.Errorf("upsert page %s: %w", page.ID, err)
		}
		n++
	}
	return n, tx.Commit()
}

// Pages returns up to limit pages ordered by most recent update.
func (s *Store) Pages(ctx context.Context, limit int) ([]records.ConfluencePage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_id, title, space, content, version, author,
		       created_at, updated_at, labels
		FROM confluence_pages
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []records.ConfluencePage
	for rows.Next() {
		var page records.ConfluencePage
		var space, content, author, labels sql.NullString
		var version sql.NullInt64
		var created, updated sql.NullTime
		if err := rows.Scan(&page.ID, &page.Title, &space, &content,
			&version, &author, &created, &updated, &labels); err != nil {
			return nil, err
		}
		page.Space = space.String
		page.Content = content.String
		page.Version = int(version.Int64)
		page.Author = author.String
		page.Created = created.Time
		page.Updated = updated.Time
		page.Labels = decodeStrings(labels.String)
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// CountPages returns the number of cached pages.
func (s *Store) CountPages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM confluence_pages`).Scan(&n)
	return n, err
}

// Prune deletes rows collected before the cutoff from both tables and
// returns the number removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"jira_issues", "confluence_pages"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE collected_at < ?", table), cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
