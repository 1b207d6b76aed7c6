package audit

import (
	"io"
	"log"

	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/bridge"
)

const (
	// CurrentPageURI is the resource holding the current audit log page.
	CurrentPageURI = "auditwatch://audit-log/current"

	resourceUpdatedMethod = "notifications/resources/updated"
)

// BroadcastFunc sends a notification to every connected MCP client.
// (*server.MCPServer).SendNotificationToAllClients satisfies it.
type BroadcastFunc func(method string, params map[string]any)

// Publisher mirrors the audit log store for MCP clients. It owns one bridge
// whose render function announces that CurrentPageURI changed; clients then
// re-read the resource. The bridge is active between Start and Stop.
type Publisher struct {
	store     *auditlog.Store
	bridge    *auditlog.Bridge
	broadcast BroadcastFunc
	logger    *log.Logger
}

// NewPublisher returns an inactive publisher.
func NewPublisher(store *auditlog.Store, broadcast BroadcastFunc, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Publisher{store: store, broadcast: broadcast, logger: logger}
	p.bridge = auditlog.NewBridge(store, p.render, logger)
	return p
}

// Start activates the publisher's bridge. The first delivery announces the
// current page to clients that connected before Start.
func (p *Publisher) Start() error {
	return p.bridge.Activate()
}

// Stop deactivates the bridge. Stopping an inactive publisher is a no-op.
func (p *Publisher) Stop() error {
	return p.bridge.Deactivate()
}

// Snapshot returns the page served by the resource: the bridge's mirror while
// active, otherwise a cold read of the store.
func (p *Publisher) Snapshot() auditlog.Snapshot {
	if p.bridge.Active() {
		return p.bridge.Snapshot()
	}
	return auditlog.ColdSnapshot(p.store)
}

// Stats returns the counters of the publisher's bridge.
func (p *Publisher) Stats() bridge.Stats {
	return p.bridge.Stats()
}

func (p *Publisher) render(snap auditlog.Snapshot) {
	if p.broadcast == nil {
		return
	}
	p.broadcast(resourceUpdatedMethod, map[string]any{"uri": CurrentPageURI})
}
