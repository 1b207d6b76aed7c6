// Package app implements application use cases and defines ports (repository interfaces).
package app

import (
	"context"

	"github.com/jaakkos/auditwatch/internal/domain"
)

// AuditRepository persists audit entries.
// Implementation: internal/repository/sqlite.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	// List returns one page of entries matching q, newest first, and the
	// total number of matching entries.
	List(ctx context.Context, q domain.Query) ([]domain.AuditEntry, int, error)
	// Recent returns up to n newest entries regardless of filters.
	Recent(ctx context.Context, n int) ([]domain.AuditEntry, error)
}
