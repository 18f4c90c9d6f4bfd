// Package records defines the domain records collectors extract from
// tool-call results.
package records

import "time"

// JiraIssue is one issue as returned by the Atlassian gateway's Jira
// tools.
type JiraIssue struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Reporter    string    `json:"reporter,omitempty"`
	IssueType   string    `json:"issueType,omitempty"`
	Created     time.Time `json:"created,omitzero"`
	Updated     time.Time `json:"updated,omitzero"`
	Labels      []string  `json:"labels,omitempty"`
	Components  []string  `json:"components,omitempty"`
}

// ConfluencePage is one page as returned by the Confluence tools.
type ConfluencePage struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Space   string    `json:"space"`
	Content string    `json:"content,omitempty"`
	Version int       `json:"version,omitempty"`
	Author  string    `json:"author,omitempty"`
	Created time.Time `json:"created,omitzero"`
	Updated time.Time `json:"updated,omitzero"`
	Labels  []string  `json:"labels,omitempty"`
}
