// Package dashboard provides a web dashboard and JSON API for the audit log,
// with a websocket stream that mirrors the store in real time.
package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/domain"
)

const (
	defaultStreamQueue  = 16
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxRecordBody       = 64 << 10
)

// Handler holds dependencies for dashboard HTTP handlers.
type Handler struct {
	store  *auditlog.Store
	writer app.EntryWriter
	logger *log.Logger

	streamQueue  int
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader

	streams atomic.Int64
	dropped atomic.Uint64

	// closing is closed by Close; open streams select on it.
	closeMu sync.Mutex
	closed  bool
	closing chan struct{}
	active  sync.WaitGroup
}

// HandlerOption configures optional settings for the dashboard handler.
type HandlerOption func(*Handler)

// WithStreamQueue sets how many frames each websocket connection buffers.
// When the queue is full the oldest queued frame is discarded, so a slow
// client always ends on the latest snapshot.
func WithStreamQueue(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.streamQueue = n
		}
	}
}

// WithPingInterval sets how often an idle stream is pinged.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewHandler creates a dashboard handler. writer records entries posted to
// the API (usually an *app.Recorder wrapping store).
func NewHandler(store *auditlog.Store, writer app.EntryWriter, logger *log.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{
		store:        store,
		writer:       writer,
		logger:       logger,
		streamQueue:  defaultStreamQueue,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		closing:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes adds dashboard routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/audit-log", h.handleAPIAuditLog)
	mux.HandleFunc("/api/audit-log/page", h.handleAPIPage)
	mux.HandleFunc("/api/audit-log/refresh", h.handleAPIRefresh)
	mux.HandleFunc("/api/audit-log/stream", h.handleStream)
	mux.HandleFunc("/dashboard", h.handleDashboard)
	mux.HandleFunc("/dashboard/", h.handleDashboard)
}

// ActiveStreams reports the number of connected websocket streams.
func (h *Handler) ActiveStreams() int64 {
	return h.streams.Load()
}

// DroppedFrames reports queued frames discarded because a newer snapshot
// arrived while a stream's queue was full.
func (h *Handler) DroppedFrames() uint64 {
	return h.dropped.Load()
}

// Close ends every open stream and waits until their bridges are
// deactivated. Streams opened afterwards are refused. Call it before closing
// the store: http.Server.Shutdown does not close hijacked connections.
func (h *Handler) Close() {
	h.closeMu.Lock()
	if !h.closed {
		h.closed = true
		close(h.closing)
	}
	h.closeMu.Unlock()
	h.active.Wait()
}

// track registers a stream with Close. It reports false once Close was called.
func (h *Handler) track() bool {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	if h.closed {
		return false
	}
	h.active.Add(1)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// preflight answers CORS preflight requests and rejects methods not in
// allowed. It reports whether the caller should continue.
func preflight(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodOptions {
		methods := "OPTIONS"
		for _, m := range allowed {
			methods = m + ", " + methods
		}
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, r.Method+" not allowed")
	return false
}

func (h *Handler) handleAPIAuditLog(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		h.handleRecord(w, r)
		return
	}
	// A fresh, never activated bridge: the cold read of the store.
	writeJSON(w, http.StatusOK, auditlog.ColdSnapshot(h.store))
}

type recordRequest struct {
	Author            string `json:"author"`
	Log               string `json:"log"`
	Environment       string `json:"environment"`
	Project           string `json:"project"`
	RelatedObjectType string `json:"related_object_type"`
	RelatedObjectID   string `json:"related_object_id"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Author) == "" || strings.TrimSpace(req.Log) == "" {
		writeError(w, http.StatusBadRequest, "author and log are required")
		return
	}
	entry, err := h.writer.Record(r.Context(), domain.AuditEntry{
		Author:            req.Author,
		Log:               req.Log,
		Environment:       req.Environment,
		Project:           req.Project,
		RelatedObjectType: req.RelatedObjectType,
		RelatedObjectID:   req.RelatedObjectID,
	})
	if err != nil {
		if errors.Is(err, auditlog.ErrInvalidEntry) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("Dashboard: record failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleAPIPage(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "n must be a page number >= 1")
		return
	}
	if err := h.store.GoToPage(r.Context(), n); err != nil {
		if errors.Is(err, auditlog.ErrNoPage) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	if err := h.store.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}
