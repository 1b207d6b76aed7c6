package main

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/config"
	"github.com/jaakkos/auditwatch/internal/repository"
)

// env is the object graph shared by every command: repository, store,
// recorder and the notifier that keeps the store in step with other writers.
type env struct {
	repo     app.AuditRepository
	store    *auditlog.Store
	recorder *app.Recorder
	notifier *app.Notifier
	logger   *log.Logger
}

func openEnv(cfg *config.Config, logger *log.Logger) (*env, error) {
	repo, err := repository.NewAuditRepository(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("audit repository: %w", err)
	}
	store := auditlog.NewStore(repo, auditlog.WithPageSize(cfg.PageSize))
	recorder := app.NewRecorder(store, cfg.SignalFilePath(), cfg.Environment, logger)
	notifier := app.NewNotifier(cfg.SignalFilePath(), store, logger,
		app.WithPollInterval(time.Duration(cfg.PollIntervalSeconds)*time.Second),
		app.WithDebounce(cfg.DebounceMS),
	)
	recorder.SetNotifier(notifier)
	return &env{repo: repo, store: store, recorder: recorder, notifier: notifier, logger: logger}, nil
}

func (e *env) close() {
	e.store.Close()
	if c, ok := e.repo.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.logger.Printf("Warning: close audit repository: %v", err)
		}
	}
}
