package app

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounceMs   = 200
	defaultPollInterval = 10 * time.Second
)

// Refresher reloads a view of the audit log. *auditlog.Store implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Notifier watches the signal file and refreshes the store whenever another
// writer (another auditwatch process, or the CLI) appended to the audit log.
// Store refreshes reach every active bridge through the store's change event.
type Notifier struct {
	signalPath   string
	refresher    Refresher
	logger       *log.Logger
	debounceMs   int
	pollInterval time.Duration

	mu            sync.Mutex
	lastSeenRev   string
	debounceTimer *time.Timer
	watcher       *fsnotify.Watcher
	useFsnotify   bool
	ctx           context.Context
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
	checkMu       sync.Mutex // serializes checkAndRefresh so one revision refreshes once
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithPollInterval sets the fallback poll interval (default 10s).
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

// WithDebounce sets how long fsnotify events are coalesced before a check.
func WithDebounce(ms int) NotifierOption {
	return func(n *Notifier) {
		if ms > 0 {
			n.debounceMs = ms
		}
	}
}

// NewNotifier creates a notifier for signalPath. The revision present at
// construction time counts as already seen.
func NewNotifier(signalPath string, refresher Refresher, logger *log.Logger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := &Notifier{
		signalPath:   signalPath,
		refresher:    refresher,
		logger:       logger,
		debounceMs:   defaultDebounceMs,
		pollInterval: defaultPollInterval,
		lastSeenRev:  ReadNotifySignal(signalPath),
		ctx:          context.Background(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start starts the file watcher and fallback poll. Returns when ctx is
// cancelled or Stop is called. If fsnotify fails to initialize, falls back
// to poll-only mode.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.doneCh)

	n.mu.Lock()
	n.ctx = ctx
	n.mu.Unlock()

	watchDir := filepath.Dir(n.signalPath)
	signalName := filepath.Base(n.signalPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
		n.useFsnotify = false
	} else {
		n.watcher = watcher
		n.useFsnotify = true
		if err := watcher.Add(watchDir); err != nil {
			n.logger.Printf("Notifier: fsnotify add %s failed (%v), using poll-only", watchDir, err)
			_ = watcher.Close()
			n.watcher = nil
			n.useFsnotify = false
		}
	}

	if n.useFsnotify {
		defer n.watcher.Close()
		go n.watchLoop(ctx, signalName)
	}

	n.pollLoop(ctx)

	n.mu.Lock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.mu.Unlock()
}

// Stop signals the notifier to stop and waits for Start to return. Call it
// only after Start has been started.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	<-n.doneCh
}

// CheckOnce runs one check-and-refresh cycle.
func (n *Notifier) CheckOnce() {
	n.checkAndRefresh()
}

// MarkSeen records rev as handled, so a signal this process wrote itself
// does not trigger a second refresh.
func (n *Notifier) MarkSeen(rev string) {
	if rev == "" {
		return
	}
	n.mu.Lock()
	n.lastSeenRev = rev
	n.mu.Unlock()
}

func (n *Notifier) watchLoop(ctx context.Context, signalName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != signalName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n.triggerDebounced()
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Printf("Notifier: watch error: %v", err)
		}
	}
}

func (n *Notifier) triggerDebounced() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(time.Duration(n.debounceMs)*time.Millisecond, n.checkAndRefresh)
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.checkAndRefresh()
		}
	}
}

func (n *Notifier) checkAndRefresh() {
	n.checkMu.Lock()
	defer n.checkMu.Unlock()

	rev := ReadNotifySignal(n.signalPath)
	if rev == "" {
		return
	}
	n.mu.Lock()
	if rev == n.lastSeenRev {
		n.mu.Unlock()
		return
	}
	ctx := n.ctx
	n.mu.Unlock()

	if err := n.refresher.Refresh(ctx); err != nil {
		n.logger.Printf("Notifier: refresh failed: %v", err)
		return
	}
	n.mu.Lock()
	n.lastSeenRev = rev
	n.mu.Unlock()
}
