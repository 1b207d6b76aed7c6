package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaakkos/auditwatch/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *Store, n int, env string, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := domain.AuditEntry{
			ID:          domain.NewEntryID(),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			Author:      "ops@example.com",
			Environment: env,
			Project:     "web",
			Log:         fmt.Sprintf("Flag state updated #%d", i),
		}
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
}

func TestStoreAppendList(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	seed(t, store, 25, "production", base)

	q := domain.Query{Page: 1, PageSize: 10}.Normalize(0)
	entries, total, err := store.List(context.Background(), q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
	if len(entries) != 10 {
		t.Fatalf("len(entries) = %d, want 10", len(entries))
	}
	if entries[0].Log != "Flag state updated #24" {
		t.Errorf("first entry = %q, want newest", entries[0].Log)
	}
	if !entries[0].CreatedAt.Equal(base.Add(24 * time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, base.Add(24*time.Second))
	}

	last, _, err := store.List(context.Background(), domain.Query{Page: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("List page 3: %v", err)
	}
	if len(last) != 5 {
		t.Errorf("page 3 len = %d, want 5", len(last))
	}
}

func TestStoreListFilters(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	seed(t, store, 3, "production", base)
	seed(t, store, 2, "staging", base)
	if err := store.Append(context.Background(), domain.AuditEntry{
		ID: domain.NewEntryID(), CreatedAt: time.Now(), Author: "alice", Environment: "staging", Log: "100% rollout_enabled",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, total, err := store.List(context.Background(), domain.Query{Page: 1, PageSize: 10, Environment: "staging"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Errorf("staging total = %d, want 3", total)
	}

	// LIKE wildcards in the search term are matched literally.
	entries, total, err := store.List(context.Background(), domain.Query{Page: 1, PageSize: 10, Search: "100%"})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].Author != "alice" {
		t.Errorf("search result total=%d entries=%+v", total, entries)
	}

	_, total, err = store.List(context.Background(), domain.Query{Page: 1, PageSize: 10, Search: "alice"})
	if err != nil {
		t.Fatalf("List author search: %v", err)
	}
	if total != 1 {
		t.Errorf("author search total = %d, want 1", total)
	}
}

func TestStoreRecent(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 4, "production", time.Now())

	entries, err := store.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || entries[0].Log != "Flag state updated #3" {
		t.Errorf("Recent = %+v", entries)
	}
	none, err := store.Recent(context.Background(), 0)
	if err != nil || len(none) != 0 {
		t.Errorf("Recent(0) = %v, %v", none, err)
	}
}

func TestStoreAppendValidation(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append(context.Background(), domain.AuditEntry{CreatedAt: time.Now()}); err == nil {
		t.Error("Append without id should fail")
	}
	if err := store.Append(context.Background(), domain.AuditEntry{ID: "x"}); err == nil {
		t.Error("Append without created_at should fail")
	}
	e := domain.AuditEntry{ID: "dup", CreatedAt: time.Now(), Author: "a", Log: "l"}
	if err := store.Append(context.Background(), e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(context.Background(), e); err == nil {
		t.Error("Append with duplicate id should fail")
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.sqlite")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seed(t, store, 1, "production", time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	_, total, err := reopened.List(context.Background(), domain.Query{Page: 1, PageSize: 5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Errorf("total after reopen = %d, want 1", total)
	}
}

func TestStoreClose(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "closed.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if st.db != nil {
		t.Error("Close should set db to nil")
	}
	// Second Close is no-op
	if err := st.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
}

func TestNew_failsOnInvalidDir(t *testing.T) {
	// Parent path is a file (e.g. /dev/null), so MkdirAll fails
	path := filepath.Join(os.DevNull, "sub", "audit.sqlite")
	_, err := New(path)
	if err == nil {
		t.Error("New should fail when parent is not a directory")
	}
}
