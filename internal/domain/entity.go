// Package domain holds audit log entities and paging.
// It has no dependencies on other packages of this module.
package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AuditEntry is a single audit log record.
type AuditEntry struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_date"`
	Author            string    `json:"author"`
	Environment       string    `json:"environment,omitempty"`
	Project           string    `json:"project,omitempty"`
	RelatedObjectType string    `json:"related_object_type,omitempty"`
	RelatedObjectID   string    `json:"related_object_id,omitempty"`
	Log               string    `json:"log"`
}

// NewEntryID returns a lexically sortable entry ID.
func NewEntryID() string {
	return ulid.Make().String()
}

// Query selects one page of the audit log.
type Query struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	Environment string `json:"environment,omitempty"`
	Project     string `json:"project,omitempty"`
	Search      string `json:"search,omitempty"` // substring of log or author
}

// Normalize clamps page and page size. A zero page size takes defaultSize
// (DefaultPageSize when defaultSize is not positive).
func (q Query) Normalize(defaultSize int) Query {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Environment = strings.TrimSpace(q.Environment)
	q.Project = strings.TrimSpace(q.Project)
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Offset is the number of entries before the first entry of the page.
func (q Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// Paging describes the position of a page within the matching entries.
// NextPage and PreviousPage are 0 when there is no such page.
type Paging struct {
	Count        int `json:"count"`
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	NextPage     int `json:"next,omitempty"`
	PreviousPage int `json:"previous,omitempty"`
}

// NewPaging computes paging for a normalized query with total matching entries.
func NewPaging(q Query, total int) Paging {
	p := Paging{Count: total, Page: q.Page, PageSize: q.PageSize}
	if q.Page > 1 {
		p.PreviousPage = q.Page - 1
	}
	if q.PageSize > 0 && q.Page*q.PageSize < total {
		p.NextPage = q.Page + 1
	}
	return p
}

// Pages is the number of pages needed for Count entries (at least 1).
func (p Paging) Pages() int {
	if p.PageSize <= 0 || p.Count == 0 {
		return 1
	}
	return (p.Count + p.PageSize - 1) / p.PageSize
}

// AuditLogPage is the model an audit log store publishes: one page of entries
// and the query that produced it.
type AuditLogPage struct {
	Entries []AuditEntry `json:"results"`
	Query   Query        `json:"query"`
}
