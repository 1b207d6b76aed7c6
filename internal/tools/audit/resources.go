package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/auditwatch/internal/auditlog"
)

// registerResources adds the current page resource. Clients that received
// notifications/resources/updated for it re-read it here.
func registerResources(s *server.MCPServer, store *auditlog.Store, pub *Publisher, logger *log.Logger) {
	s.AddResource(
		mcp.NewResource(
			CurrentPageURI,
			"Current audit log page",
			mcp.WithResourceDescription("The audit log page currently loaded by the server, with loading/saving flags and paging. Updated whenever the log changes."),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			logger.Println("Resource read: audit-log/current")
			var snap auditlog.Snapshot
			if pub != nil {
				snap = pub.Snapshot()
			} else {
				snap = auditlog.ColdSnapshot(store)
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return nil, fmt.Errorf("encode snapshot: %w", err)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "application/json",
					Text:     string(data),
				},
			}, nil
		},
	)
}
