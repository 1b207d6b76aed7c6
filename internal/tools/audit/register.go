// Package audit exposes the audit log over MCP: tools to list, record and
// query entries, and a resource mirroring the current page.
package audit

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
)

const defaultScanLimit = 500

// RegisterOption configures optional dependencies for tool registration.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	publisher *Publisher
	enabled   func(name string) bool
	scanLimit int
	sessions  *app.SessionRegistry
}

// WithPublisher serves the current page resource from p. Without it the
// resource is served from a cold read of the store.
func WithPublisher(p *Publisher) RegisterOption {
	return func(o *registerOpts) { o.publisher = p }
}

// WithToolFilter registers only the tools for which enabled returns true.
func WithToolFilter(enabled func(name string) bool) RegisterOption {
	return func(o *registerOpts) { o.enabled = enabled }
}

// WithScanLimit sets how many recent entries query_audit_log scans by default.
func WithScanLimit(n int) RegisterOption {
	return func(o *registerOpts) {
		if n > 0 {
			o.scanLimit = n
		}
	}
}

// WithSessions reports the connected MCP clients in audit_log_status.
func WithSessions(r *app.SessionRegistry) RegisterOption {
	return func(o *registerOpts) { o.sessions = r }
}

// Register registers the audit log tools and resources with the mcp-go server.
// writer records entries (usually an *app.Recorder wrapping store); repo backs
// the filter scans of query_audit_log.
func Register(s *server.MCPServer, store *auditlog.Store, writer app.EntryWriter, repo app.AuditRepository, logger *log.Logger, opts ...RegisterOption) {
	o := registerOpts{scanLimit: defaultScanLimit}
	for _, opt := range opts {
		opt(&o)
	}
	enabled := func(name string) bool { return o.enabled == nil || o.enabled(name) }

	if enabled(toolListAuditLog) {
		registerListAuditLog(s, store, logger)
	}
	if enabled(toolRecordAuditEvent) {
		registerRecordAuditEvent(s, writer, logger)
	}
	if enabled(toolQueryAuditLog) {
		registerQueryAuditLog(s, repo, o.scanLimit, logger)
	}
	if enabled(toolAuditLogStatus) {
		registerAuditLogStatus(s, store, o.publisher, o.sessions, logger)
	}

	registerResources(s, store, o.publisher, logger)
}
