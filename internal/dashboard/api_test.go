package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/domain"
	"github.com/jaakkos/auditwatch/internal/repository"
)

func newTestHandler(t *testing.T, opts ...HandlerOption) (*Handler, *auditlog.Store, *http.ServeMux) {
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
	logger := log.New(io.Discard, "", 0)
	store := auditlog.NewStore(repo, auditlog.WithPageSize(2))
	h := NewHandler(store, app.NewRecorder(store, "", "", logger), logger, opts...)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, store, mux
}

func do(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) auditlog.Snapshot {
	t.Helper()
	var snap auditlog.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("json decode: %v (body %s)", err, w.Body.String())
	}
	return snap
}

func TestAPIAuditLog_ColdRead(t *testing.T) {
	_, _, mux := newTestHandler(t)

	w := do(t, mux, "GET", "/api/audit-log", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	snap := decodeSnapshot(t, w)
	if !snap.IsLoading || snap.IsSaving || snap.Model != nil || snap.Paging != nil {
		t.Errorf("cold read of an unloaded store = %+v", snap)
	}
}

func TestAPIAuditLog_Record(t *testing.T) {
	_, store, mux := newTestHandler(t)

	w := do(t, mux, "POST", "/api/audit-log", `{"author":"ops@example.com","log":"Flag enabled","environment":"production"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var entry domain.AuditEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if entry.ID == "" || entry.Environment != "production" {
		t.Errorf("entry = %+v", entry)
	}

	snap := decodeSnapshot(t, do(t, mux, "GET", "/api/audit-log", ""))
	if snap.IsLoading || snap.Model == nil || len(snap.Model.Entries) != 1 {
		t.Errorf("snapshot after record = %+v", snap)
	}
	if store.Snapshot().Paging.Count != 1 {
		t.Errorf("store paging = %+v", store.Snapshot().Paging)
	}
}

func TestAPIAuditLog_RecordErrors(t *testing.T) {
	_, _, mux := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"author":`},
		{"missing log", `{"author":"ops"}`},
		{"unknown field", `{"author":"ops","log":"x","severity":"high"}`},
		{"blank author", `{"author":"   ","log":"x"}`},
		{"blank log", `{"author":"ops","log":"\t\n"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, "POST", "/api/audit-log", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

// A writer that bypasses the handler's own checks still maps validation
// failures to 400.
type rejectingWriter struct{}

func (rejectingWriter) Record(context.Context, domain.AuditEntry) (domain.AuditEntry, error) {
	return domain.AuditEntry{}, fmt.Errorf("record: %w", auditlog.ErrInvalidEntry)
}

func TestAPIAuditLog_InvalidEntryIsBadRequest(t *testing.T) {
	_, store, _ := newTestHandler(t)
	h := NewHandler(store, rejectingWriter{}, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	w := do(t, mux, "POST", "/api/audit-log", `{"author":"ops","log":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAPIMethods(t *testing.T) {
	_, _, mux := newTestHandler(t)

	if w := do(t, mux, "DELETE", "/api/audit-log", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/audit-log = %d, want 405", w.Code)
	}
	if w := do(t, mux, "GET", "/api/audit-log/page?n=1", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/audit-log/page = %d, want 405", w.Code)
	}
	w := do(t, mux, "OPTIONS", "/api/audit-log/page", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestAPIPage(t *testing.T) {
	_, store, mux := newTestHandler(t)
	for _, msg := range []string{"one", "two", "three"} {
		if w := do(t, mux, "POST", "/api/audit-log", `{"author":"ops","log":"`+msg+`"}`); w.Code != http.StatusCreated {
			t.Fatalf("record %s: %d", msg, w.Code)
		}
	}

	w := do(t, mux, "POST", "/api/audit-log/page?n=2", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.Paging.Page != 2 || len(snap.Model.Entries) != 1 || snap.Model.Entries[0].Log != "one" {
		t.Errorf("page 2 = %+v %+v", *snap.Paging, snap.Model.Entries)
	}
	if store.Query().Page != 2 {
		t.Errorf("store query page = %d, want 2", store.Query().Page)
	}

	if w := do(t, mux, "POST", "/api/audit-log/page?n=3", ""); w.Code != http.StatusNotFound {
		t.Errorf("page beyond range = %d, want 404", w.Code)
	}
	if w := do(t, mux, "POST", "/api/audit-log/page?n=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad page number = %d, want 400", w.Code)
	}
}

func TestAPIRefresh(t *testing.T) {
	_, store, mux := newTestHandler(t)
	if err := store.Fetch(context.Background(), domain.Query{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	w := do(t, mux, "POST", "/api/audit-log/refresh", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if snap := decodeSnapshot(t, w); snap.IsLoading || snap.Model == nil {
		t.Errorf("snapshot after refresh = %+v", snap)
	}
}

func TestDashboardPage(t *testing.T) {
	_, _, mux := newTestHandler(t)
	w := do(t, mux, "GET", "/dashboard", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "/api/audit-log/stream") {
		t.Error("dashboard should subscribe to the stream")
	}
}
