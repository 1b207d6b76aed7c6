// auditwatch: audit log server and CLI.
// serve runs MCP over stdio plus HTTP (MCP endpoint, dashboard, live stream);
// the other commands read and write the same audit database directly.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/docopt/docopt-go"

	"github.com/jaakkos/auditwatch/internal/config"
)

// Version is set by -ldflags at build time.
var Version = "dev"

const usage = `auditwatch - audit log server, recorder and tail view.

The audit database and signal file default to ~/.config/auditwatch.
Set AUDITWATCH_CONFIG to a YAML config file to override them.

Usage:
    auditwatch serve [--http=<port>] [--no-stdio]
    auditwatch record --author=<author> --log=<text>
        [--environment=<env>] [--project=<project>]
        [--object-type=<type>] [--object-id=<id>]
    auditwatch list [--page=<n>] [--page-size=<n>] [--environment=<env>]
        [--project=<project>] [--search=<text>] [--json]
    auditwatch tail [--filter=<expr>]
    auditwatch status
    auditwatch -h | --help
    auditwatch --version

Options:
    -h --help               Show this screen.
    --version               Show version.
    --http=<port>           HTTP port for /mcp, /dashboard and the stream (default from config, 0 picks a free port).
    --no-stdio              Serve HTTP only; run until interrupted.
    --author=<author>       Who made the change.
    --log=<text>            What changed.
    --environment=<env>     Environment the change applies to.
    --project=<project>     Project the change applies to.
    --object-type=<type>    Kind of object changed (e.g. FEATURE).
    --object-id=<id>        ID of the object changed.
    --page=<n>              Page number [default: 1].
    --page-size=<n>         Entries per page (default from config).
    --search=<text>         Substring of the log text or author.
    --json                  Print the snapshot as JSON.
    --filter=<expr>         Only show entries matching this expression, e.g. 'Environment == "production"'.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], "auditwatch "+Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	tmpLogger := log.New(os.Stderr, "[auditwatch] ", log.LstdFlags|log.Lshortfile)
	cfg := loadConfig(tmpLogger)

	switch {
	case flag(opts, "serve"):
		err = runServe(cfg, opts)
	case flag(opts, "record"):
		err = runRecord(cfg, opts)
	case flag(opts, "list"):
		err = runList(cfg, opts)
	case flag(opts, "tail"):
		err = runTail(cfg, opts)
	case flag(opts, "status"):
		err = runStatus(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func flag(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

func optString(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return strings.TrimSpace(v)
}

// optInt returns fallback when key is absent and an error when it is not a number.
func optInt(opts docopt.Opts, key string, fallback int) (int, error) {
	if v, ok := opts[key]; !ok || v == nil {
		return fallback, nil
	}
	n, err := opts.Int(key)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal (interactive use), logs go to both stderr and the file.
// When stderr is redirected, logs go only to the file.
func setupLogger(logFilePath string, stderrAllowed bool) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[auditwatch] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[auditwatch] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	// The tail view owns the terminal; stderr output would corrupt it.
	if stderrAllowed && (stderrIsTerminal || !hasLogFile) {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	return log.New(io.MultiWriter(writers...), "[auditwatch] ", log.LstdFlags|log.Lshortfile)
}

func loadConfig(logger *log.Logger) *config.Config {
	cfg := config.DefaultConfig()
	if configPath := os.Getenv(config.EnvVar); configPath != "" {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = config.DefaultConfig()
		}
	}
	if cfg.WorkspaceRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
			os.Exit(1)
		}
		cfg.WorkspaceRoot = cwd
	}
	return cfg
}
