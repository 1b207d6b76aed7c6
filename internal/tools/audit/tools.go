package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/bridge"
	"github.com/jaakkos/auditwatch/internal/domain"
)

const (
	toolListAuditLog     = "list_audit_log"
	toolRecordAuditEvent = "record_audit_event"
	toolQueryAuditLog    = "query_audit_log"
	toolAuditLogStatus   = "audit_log_status"
)

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// registerListAuditLog registers the list_audit_log tool.
func registerListAuditLog(s *server.MCPServer, store *auditlog.Store, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolListAuditLog,
			mcp.WithDescription("Load one page of the audit log, newest first. The loaded page becomes the current page served by the auditwatch://audit-log/current resource."),
			mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default: 1)")),
			mcp.WithNumber("page_size", mcp.Description("Entries per page, 1-100 (default: server page size)")),
			mcp.WithString("environment", mcp.Description("Only entries for this environment")),
			mcp.WithString("project", mcp.Description("Only entries for this project")),
			mcp.WithString("search", mcp.Description("Substring of the log text or author")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			page, err := optionalInt(args, "page", 1)
			if err != nil {
				return nil, err
			}
			size, err := optionalInt(args, "page_size", 0)
			if err != nil {
				return nil, err
			}
			q := domain.Query{
				Page:        page,
				PageSize:    size,
				Environment: optionalString(args, "environment"),
				Project:     optionalString(args, "project"),
				Search:      optionalString(args, "search"),
			}
			if err := store.Fetch(ctx, q); err != nil {
				return nil, fmt.Errorf("list audit log: %w", err)
			}
			snap := store.Snapshot()
			if snap.Paging != nil {
				logger.Printf("Audit log page %d loaded (%d matching)", snap.Paging.Page, snap.Paging.Count)
			}
			return jsonResult(snap)
		},
	)
}

// registerRecordAuditEvent registers the record_audit_event tool.
func registerRecordAuditEvent(s *server.MCPServer, writer app.EntryWriter, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolRecordAuditEvent,
			mcp.WithDescription("Append an entry to the audit log. Every open view of the log refreshes."),
			mcp.WithString("author", mcp.Required(), mcp.Description("Who made the change (e.g. an email address)")),
			mcp.WithString("log", mcp.Required(), mcp.Description("What changed")),
			mcp.WithString("environment", mcp.Description("Environment the change applies to (default: server environment)")),
			mcp.WithString("project", mcp.Description("Project the change applies to")),
			mcp.WithString("related_object_type", mcp.Description("Kind of object changed (e.g. FEATURE, SEGMENT)")),
			mcp.WithString("related_object_id", mcp.Description("ID of the object changed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			author, err := requireString(args, "author")
			if err != nil {
				return nil, err
			}
			text, err := requireString(args, "log")
			if err != nil {
				return nil, err
			}
			entry, err := writer.Record(ctx, domain.AuditEntry{
				Author:            author,
				Log:               text,
				Environment:       optionalString(args, "environment"),
				Project:           optionalString(args, "project"),
				RelatedObjectType: optionalString(args, "related_object_type"),
				RelatedObjectID:   optionalString(args, "related_object_id"),
			})
			if err != nil {
				return nil, fmt.Errorf("record audit event: %w", err)
			}
			logger.Printf("Audit entry %s recorded by %s", entry.ID, entry.Author)
			return jsonResult(entry)
		},
	)
}

type queryResult struct {
	Filter  string              `json:"filter"`
	Scanned int                 `json:"scanned"`
	Matches int                 `json:"matches"`
	Results []domain.AuditEntry `json:"results"`
}

// registerQueryAuditLog registers the query_audit_log tool.
func registerQueryAuditLog(s *server.MCPServer, repo app.AuditRepository, scanLimit int, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolQueryAuditLog,
			mcp.WithDescription(`Filter the most recent audit entries with an expression over entry fields (ID, CreatedAt, Author, Environment, Project, RelatedObjectType, RelatedObjectID, Log). Example: Environment == "production" && Author contains "ops".`),
			mcp.WithString("filter", mcp.Required(), mcp.Description("Boolean filter expression")),
			mcp.WithNumber("scan_limit", mcp.Description(fmt.Sprintf("How many recent entries to scan (default: %d)", scanLimit))),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			src, err := requireString(args, "filter")
			if err != nil {
				return nil, err
			}
			limit, err := optionalInt(args, "scan_limit", scanLimit)
			if err != nil {
				return nil, err
			}
			if limit == 0 {
				limit = scanLimit
			}
			f, err := auditlog.CompileFilter(src)
			if err != nil {
				return nil, err
			}
			recent, err := repo.Recent(ctx, limit)
			if err != nil {
				return nil, fmt.Errorf("query audit log: %w", err)
			}
			matches, err := auditlog.FilterEntries(f, recent)
			if err != nil {
				return nil, err
			}
			logger.Printf("Audit query %q matched %d of %d", f.String(), len(matches), len(recent))
			return jsonResult(queryResult{
				Filter:  f.String(),
				Scanned: len(recent),
				Matches: len(matches),
				Results: matches,
			})
		},
	)
}

type statusResult struct {
	IsLoading bool                `json:"isLoading"`
	IsSaving  bool                `json:"isSaving"`
	Loaded    bool                `json:"loaded"`
	Paging    *domain.Paging      `json:"paging,omitempty"`
	Query     domain.Query        `json:"query"`
	Listeners int                 `json:"listeners"`
	LastError string              `json:"last_error,omitempty"`
	Publisher *bridge.Stats       `json:"publisher,omitempty"`
	Clients   []app.ClientSession `json:"clients,omitempty"`
}

// registerAuditLogStatus registers the audit_log_status tool.
func registerAuditLogStatus(s *server.MCPServer, store *auditlog.Store, pub *Publisher, sessions *app.SessionRegistry, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool(toolAuditLogStatus,
			mcp.WithDescription("Show whether the audit log is loading or saving, the current paging, and how many views are attached."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			snap := store.Snapshot()
			res := statusResult{
				IsLoading: snap.IsLoading,
				IsSaving:  snap.IsSaving,
				Loaded:    snap.Model != nil,
				Paging:    snap.Paging,
				Query:     store.Query(),
				Listeners: store.ListenerCount(),
			}
			if err := store.Err(); err != nil {
				res.LastError = err.Error()
			}
			if pub != nil {
				st := pub.Stats()
				res.Publisher = &st
			}
			if sessions != nil {
				res.Clients = sessions.Sessions()
			}
			return jsonResult(res)
		},
	)
}
