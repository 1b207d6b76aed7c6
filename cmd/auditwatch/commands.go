package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/docopt/docopt-go"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/config"
	"github.com/jaakkos/auditwatch/internal/domain"
	"github.com/jaakkos/auditwatch/internal/tui"
)

// runRecord appends one entry. Running servers pick it up through the
// notify signal.
func runRecord(cfg *config.Config, opts docopt.Opts) error {
	logger := setupLogger(cfg.LogFilePath(), false)
	env, err := openEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	entry, err := env.recorder.Record(context.Background(), domain.AuditEntry{
		Author:            optString(opts, "--author"),
		Log:               optString(opts, "--log"),
		Environment:       optString(opts, "--environment"),
		Project:           optString(opts, "--project"),
		RelatedObjectType: optString(opts, "--object-type"),
		RelatedObjectID:   optString(opts, "--object-id"),
	})
	if err != nil {
		return err
	}
	fmt.Println(entry.ID)
	return nil
}

func runList(cfg *config.Config, opts docopt.Opts) error {
	page, err := optInt(opts, "--page", 1)
	if err != nil {
		return err
	}
	size, err := optInt(opts, "--page-size", cfg.PageSize)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogFilePath(), false)
	env, err := openEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	q := domain.Query{
		Page:        page,
		PageSize:    size,
		Environment: optString(opts, "--environment"),
		Project:     optString(opts, "--project"),
		Search:      optString(opts, "--search"),
	}
	if err := env.store.Fetch(context.Background(), q); err != nil {
		return err
	}
	snap := env.store.Snapshot()
	if flag(opts, "--json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return printPage(os.Stdout, snap)
}

func printPage(w io.Writer, snap auditlog.Snapshot) error {
	if snap.Model == nil || snap.Paging == nil {
		_, err := fmt.Fprintln(w, "nothing loaded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tAUTHOR\tENVIRONMENT\tPROJECT\tOBJECT\tLOG")
	for _, e := range snap.Model.Entries {
		obj := e.RelatedObjectType
		if e.RelatedObjectID != "" {
			obj += " " + e.RelatedObjectID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Author, e.Environment, e.Project, obj, e.Log)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := snap.Paging
	_, err := fmt.Fprintf(w, "page %d/%d, %d entries\n", p.Page, p.Pages(), p.Count)
	return err
}

// runTail shows the live tail view. The notifier keeps it in step with
// writes from other processes.
func runTail(cfg *config.Config, opts docopt.Opts) error {
	filter, err := auditlog.CompileFilter(optString(opts, "--filter"))
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogFilePath(), false)
	env, err := openEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go env.notifier.Start(ctx)
	defer env.notifier.Stop()

	return tui.Run(ctx, env.store, filter, logger)
}

// runStatus prints a one-line summary of the audit database.
func runStatus(cfg *config.Config) error {
	logger := setupLogger(cfg.LogFilePath(), false)
	env, err := openEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := context.Background()
	if err := env.store.Fetch(ctx, domain.Query{PageSize: 1}); err != nil {
		return err
	}
	snap := env.store.Snapshot()
	last := "never"
	if snap.Model != nil && len(snap.Model.Entries) > 0 {
		e := snap.Model.Entries[0]
		last = fmt.Sprintf("%s by %s", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Author)
	}
	fmt.Printf("entries=%d last=%q signal=%s\n", snap.Paging.Count, last, app.ReadNotifySignal(cfg.SignalFilePath()))
	return nil
}
