package repository

import (
	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/repository/sqlite"
)

// NewAuditRepository returns an AuditRepository backed by SQLite at the given path.
// The path is typically from config.StateFile() (default ~/.config/auditwatch/audit.sqlite).
func NewAuditRepository(path string) (app.AuditRepository, error) {
	store, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
