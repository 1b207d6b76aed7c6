package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jaakkos/auditwatch/internal/domain"
)

type fakeWriter struct {
	got []domain.AuditEntry
	err error
}

func (w *fakeWriter) Record(_ context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	if w.err != nil {
		return domain.AuditEntry{}, w.err
	}
	e.ID = "01J0000000000000000000000"
	w.got = append(w.got, e)
	return e, nil
}

func TestRecorder_RecordTouchesSignal(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".auditwatch-notify")
	w := &fakeWriter{}
	r := NewRecorder(w, signalPath, "production", nil)

	saved, err := r.Record(context.Background(), domain.AuditEntry{Author: "ops", Log: "deployed"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if saved.Environment != "production" {
		t.Errorf("Environment = %q, want default production", saved.Environment)
	}
	if ReadNotifySignal(signalPath) == "" {
		t.Error("signal file should be touched after a write")
	}

	if _, err := r.Record(context.Background(), domain.AuditEntry{Author: "ops", Log: "x", Environment: "staging"}); err != nil {
		t.Fatal(err)
	}
	if w.got[1].Environment != "staging" {
		t.Errorf("explicit environment overwritten: %q", w.got[1].Environment)
	}
}

func TestRecorder_OwnWriteDoesNotRefresh(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".auditwatch-notify")
	refresher := &countingRefresher{}
	n := NewNotifier(signalPath, refresher, nil)
	r := NewRecorder(&fakeWriter{}, signalPath, "", nil)
	r.SetNotifier(n)

	if _, err := r.Record(context.Background(), domain.AuditEntry{Author: "ops", Log: "x"}); err != nil {
		t.Fatal(err)
	}
	n.CheckOnce()
	if refresher.count() != 0 {
		t.Errorf("refreshes = %d, want 0 after own write", refresher.count())
	}

	// A foreign writer still triggers a refresh.
	if _, err := TouchNotifySignal(signalPath); err != nil {
		t.Fatal(err)
	}
	n.CheckOnce()
	if refresher.count() != 1 {
		t.Errorf("refreshes = %d, want 1 after foreign write", refresher.count())
	}
}

func TestRecorder_WriteError(t *testing.T) {
	signalPath := filepath.Join(t.TempDir(), ".auditwatch-notify")
	r := NewRecorder(&fakeWriter{err: errors.New("boom")}, signalPath, "", nil)
	if _, err := r.Record(context.Background(), domain.AuditEntry{Author: "a", Log: "b"}); err == nil {
		t.Fatal("expected write error")
	}
	if ReadNotifySignal(signalPath) != "" {
		t.Error("signal must not be touched when the write fails")
	}
}
