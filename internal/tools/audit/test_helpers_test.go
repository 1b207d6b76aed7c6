package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/repository"
)

type fixture struct {
	repo   app.AuditRepository
	store  *auditlog.Store
	pub    *Publisher
	server *server.MCPServer
}

// newFixture builds a sqlite-backed store, an inactive publisher and an
// MCPServer with all tools registered.
func newFixture(t *testing.T, opts ...RegisterOption) *fixture {
	t.Helper()
	repo, err := repository.NewAuditRepository(filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("NewAuditRepository: %v", err)
	}
	t.Cleanup(func() {
		if c, ok := repo.(io.Closer); ok {
			_ = c.Close()
		}
	})
	store := auditlog.NewStore(repo, auditlog.WithPageSize(2))
	s := server.NewMCPServer("test", "1.0.0", server.WithResourceCapabilities(false, true))
	logger := log.New(io.Discard, "", 0)
	pub := NewPublisher(store, s.SendNotificationToAllClients, logger)
	t.Cleanup(func() { _ = pub.Stop() })
	opts = append([]RegisterOption{WithPublisher(pub)}, opts...)
	Register(s, store, app.NewRecorder(store, "", "", logger), repo, logger, opts...)
	return &fixture{repo: repo, store: store, pub: pub, server: s}
}

// rpc sends one JSON-RPC request through HandleMessage and returns its raw result.
func rpc(t *testing.T, s *server.MCPServer, method string, params map[string]any) (json.RawMessage, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// callTool calls a registered tool and returns the parsed CallToolResult.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	raw, err := rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result, nil
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// decodeResult unmarshals the JSON text of a tool result into v.
func decodeResult(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
}

func record(t *testing.T, s *server.MCPServer, args map[string]any) {
	t.Helper()
	if _, err := callTool(t, s, toolRecordAuditEvent, args); err != nil {
		t.Fatalf("record_audit_event: %v", err)
	}
}
