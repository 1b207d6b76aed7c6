package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/config"
	"github.com/jaakkos/auditwatch/internal/dashboard"
	"github.com/jaakkos/auditwatch/internal/domain"
	"github.com/jaakkos/auditwatch/internal/tools/audit"
)

func runServe(cfg *config.Config, opts docopt.Opts) error {
	port, err := optInt(opts, "--http", cfg.HTTPPort)
	if err != nil {
		return err
	}
	useStdio := !flag(opts, "--no-stdio")

	logger := setupLogger(cfg.LogFilePath(), true)
	logger.Println("Starting auditwatch server...")
	logger.Printf("Log file: %s", cfg.LogFilePath())
	logger.Printf("Audit database: %s", cfg.StatePath())

	env, err := openEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.close()

	sessions := app.NewSessionRegistry()
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		sessions.Add(session.SessionID())
	})
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if message == nil {
			return
		}
		ci := message.Params.ClientInfo
		logger.Printf("Client: %s %s, Protocol: %s", ci.Name, ci.Version, message.Params.ProtocolVersion)
		if session := server.ClientSessionFromContext(ctx); session != nil {
			sessions.SetClient(session.SessionID(), ci.Name)
			logger.Printf("Client session registered: %s", session.SessionID())
		}
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
		if session := server.ClientSessionFromContext(ctx); session != nil {
			sessions.Touch(session.SessionID())
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sessions.Remove(session.SessionID())
		logger.Printf("Client session unregistered: %s", session.SessionID())
	})

	mcpServer := server.NewMCPServer(
		"auditwatch",
		Version,
		server.WithInstructions(audit.InstructionsText()),
		server.WithHooks(hooks),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, true), // subscribe=false, listChanged=true
	)

	publisher := audit.NewPublisher(env.store, mcpServer.SendNotificationToAllClients, logger)
	audit.Register(mcpServer, env.store, env.recorder, env.repo, logger,
		audit.WithPublisher(publisher),
		audit.WithToolFilter(cfg.IsToolEnabled),
		audit.WithScanLimit(cfg.ScanLimit),
		audit.WithSessions(sessions),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ignore SIGHUP so the server keeps running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := env.store.Fetch(ctx, domain.Query{}); err != nil {
		logger.Printf("Warning: initial audit log fetch failed: %v", err)
	}
	if err := publisher.Start(); err != nil {
		return fmt.Errorf("start publisher: %w", err)
	}

	go env.notifier.Start(ctx)

	dash := dashboard.NewHandler(env.store, env.recorder, logger, dashboard.WithStreamQueue(cfg.StreamQueue))
	httpShutdown, err := startHTTPServer(mcpServer, dash, env.store, sessions, port, logger)
	if err != nil {
		cancel()
		env.notifier.Stop()
		_ = publisher.Stop()
		return err
	}

	if useStdio {
		logger.Println("Stdio ready")
		stdioSrv := server.NewStdioServer(mcpServer)
		stdioSrv.SetErrorLogger(logger)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			logger.Printf("Stdio server stopped: %v", err)
		}
	} else {
		<-ctx.Done()
	}

	// Client disconnected or signal received -- shut everything down
	cancel()
	httpShutdown()
	// Shutdown leaves hijacked websocket streams open; end them while the
	// store still holds their listeners.
	dash.Close()
	env.notifier.Stop()
	if err := publisher.Stop(); err != nil {
		logger.Printf("Warning: stop publisher: %v", err)
	}

	logger.Println("Server stopped")
	return nil
}

// startHTTPServer starts the HTTP server in the background for MCP clients,
// the dashboard and its stream. Returns a shutdown function. Uses net.Listen to
// support port 0 (auto-assign) for running multiple instances.
func startHTTPServer(mcpServer *server.MCPServer, dash *dashboard.Handler, store *auditlog.Store, sessions *app.SessionRegistry, port int, logger *log.Logger) (func(), error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("HTTP listen: %w", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  MCP clients connect at: %s/mcp", baseURL)
	logger.Printf("  Dashboard:              %s/dashboard", baseURL)

	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","port":%d,"clients":%d,"streams":%d,"listeners":%d}`,
			actualPort, sessions.Count(), dash.ActiveStreams(), store.ListenerCount())
	})
	dash.RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}, nil
}
