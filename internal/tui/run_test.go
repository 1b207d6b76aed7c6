package tui

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jaakkos/auditwatch/internal/auditlog"
	"github.com/jaakkos/auditwatch/internal/repository"
)

func newRunStore(t *testing.T) *auditlog.Store {
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
	return auditlog.NewStore(repo)
}

// headless runs the program without a terminal.
func headless(input io.Reader) []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithInput(input),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	}
}

func waitRun(t *testing.T, errc <-chan error) {
	t.Helper()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_CancelDetachesBridge(t *testing.T) {
	store := newRunStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, store, nil, nil, headless(nil)...) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.ListenerCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("tail view never attached to the store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	waitRun(t, errc)
	if n := store.ListenerCount(); n != 0 {
		t.Errorf("listeners after Run = %d, want 0", n)
	}
}

func TestRun_QuitKeyDetachesBridge(t *testing.T) {
	store := newRunStore(t)

	errc := make(chan error, 1)
	go func() { errc <- Run(context.Background(), store, nil, nil, headless(strings.NewReader("q"))...) }()

	waitRun(t, errc)
	if n := store.ListenerCount(); n != 0 {
		t.Errorf("listeners after Run = %d, want 0", n)
	}
}
