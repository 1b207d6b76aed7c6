// Package auditlog holds the observable audit log store: one page of the
// audit log in memory, loaded from an app.AuditRepository, emitting a
// payload-free change notification after every mutation.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/auditwatch/internal/app"
	"github.com/jaakkos/auditwatch/internal/bridge"
	"github.com/jaakkos/auditwatch/internal/domain"
)

var (
	ErrUnknownEvent    = errors.New("unknown event")
	ErrUnknownListener = errors.New("unknown listener")
	ErrClosed          = errors.New("audit log store closed")
	ErrNoPage          = errors.New("no such page")
	ErrInvalidEntry    = errors.New("invalid audit entry")
)

// Snapshot is the snapshot type published by Store.
type Snapshot = bridge.Snapshot[domain.AuditLogPage, domain.Paging]

// Bridge is a bridge over Store.
type Bridge = bridge.Bridge[domain.AuditLogPage, domain.Paging]

// RenderFunc receives audit log snapshots from a Bridge.
type RenderFunc = bridge.RenderFunc[domain.AuditLogPage, domain.Paging]

var _ bridge.Store[domain.AuditLogPage, domain.Paging] = (*Store)(nil)

// NewBridge returns an inactive bridge over s. logger may be nil.
func NewBridge(s *Store, render RenderFunc, logger *log.Logger) *Bridge {
	var opts []bridge.Option
	if logger != nil {
		opts = append(opts, bridge.WithLogger(logger))
	}
	return bridge.New[domain.AuditLogPage, domain.Paging](s, render, opts...)
}

// ColdSnapshot returns what a freshly constructed bridge over s would hold:
// the store's fields with IsLoading derived from the absence of a model.
func ColdSnapshot(s *Store) Snapshot {
	return NewBridge(s, nil, nil).Snapshot()
}

type listener struct {
	handle bridge.Handle
	fn     func()
}

// Store is the observable audit log store. It is safe for concurrent use.
// Listeners run synchronously on the goroutine that mutated the store and
// must not call Fetch, Record or the paging methods themselves.
type Store struct {
	repo     app.AuditRepository
	pageSize int
	now      func() time.Time

	opMu sync.Mutex // serializes fetches and writes

	mu        sync.RWMutex
	model     *domain.AuditLogPage
	paging    *domain.Paging
	query     domain.Query
	isLoading bool
	isSaving  bool
	lastErr   error
	listeners []listener
	closed    bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPageSize sets the page size used when a query does not carry one.
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock replaces time.Now for entries recorded without a timestamp.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a store that has not loaded anything yet: IsLoading is
// true and there is no model until the first Fetch completes.
func NewStore(repo app.AuditRepository, opts ...StoreOption) *Store {
	s := &Store{
		repo:      repo,
		pageSize:  domain.DefaultPageSize,
		now:       time.Now,
		isLoading: true,
	}
	for _, o := range opts {
		o(s)
	}
	s.query = domain.Query{}.Normalize(s.pageSize)
	return s
}

// Snapshot implements bridge.Store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		IsLoading: s.isLoading,
		IsSaving:  s.isSaving,
		Model:     s.model,
		Paging:    s.paging,
	}
}

// AddListener implements bridge.Store. Only bridge.ChangeEvent is supported.
func (s *Store) AddListener(event string, fn func()) (bridge.Handle, error) {
	if event != bridge.ChangeEvent {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if fn == nil {
		return "", fmt.Errorf("listener func is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	h := bridge.Handle(uuid.NewString())
	s.listeners = append(s.listeners, listener{handle: h, fn: fn})
	return h, nil
}

// RemoveListener implements bridge.Store.
func (s *Store) RemoveListener(h bridge.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.handle == h {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownListener, h)
}

// ListenerCount reports the number of registered listeners.
func (s *Store) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Query returns the query of the current (or in-flight) page.
func (s *Store) Query() domain.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Err returns the error of the last failed operation, cleared by the next
// successful one.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Close drops every listener. Later registrations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = nil
}

// Fetch loads the page selected by q and publishes it. Listeners see a
// loading notification followed by a loaded (or failed) one.
func (s *Store) Fetch(ctx context.Context, q domain.Query) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.fetchLocked(ctx, q.Normalize(s.pageSize))
}

// Refresh reloads the current query.
func (s *Store) Refresh(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.fetchLocked(ctx, s.Query())
}

// GoToPage loads page n of the current query. n must be within the known
// page range once a page has been loaded.
func (s *Store) GoToPage(ctx context.Context, n int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	snap := s.Snapshot()
	if n < 1 || (snap.Paging != nil && n > snap.Paging.Pages()) {
		return fmt.Errorf("%w: %d", ErrNoPage, n)
	}
	q := s.Query()
	q.Page = n
	return s.fetchLocked(ctx, q)
}

// NextPage loads the page after the current one.
func (s *Store) NextPage(ctx context.Context) error {
	return s.step(ctx, func(p *domain.Paging) int { return p.NextPage })
}

// PreviousPage loads the page before the current one.
func (s *Store) PreviousPage(ctx context.Context) error {
	return s.step(ctx, func(p *domain.Paging) int { return p.PreviousPage })
}

func (s *Store) step(ctx context.Context, target func(*domain.Paging) int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	snap := s.Snapshot()
	if snap.Paging == nil {
		return fmt.Errorf("%w: nothing loaded", ErrNoPage)
	}
	n := target(snap.Paging)
	if n == 0 {
		return ErrNoPage
	}
	q := s.Query()
	q.Page = n
	return s.fetchLocked(ctx, q)
}

// Record appends entry and reloads the current page. ID and CreatedAt are
// assigned when empty. Listeners see a saving notification followed by a
// saved (or failed) one.
func (s *Store) Record(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	entry.Author = strings.TrimSpace(entry.Author)
	entry.Log = strings.TrimSpace(entry.Log)
	if entry.Author == "" || entry.Log == "" {
		return domain.AuditEntry{}, fmt.Errorf("%w: author and log are required", ErrInvalidEntry)
	}
	if entry.ID == "" {
		entry.ID = domain.NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.update(func() { s.isSaving = true })
	if err := s.repo.Append(ctx, entry); err != nil {
		s.fail(err)
		return domain.AuditEntry{}, err
	}

	q := s.Query()
	entries, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.fail(err)
		return domain.AuditEntry{}, err
	}
	s.publish(q, entries, total)
	return entry, nil
}

func (s *Store) fetchLocked(ctx context.Context, q domain.Query) error {
	s.update(func() {
		s.isLoading = true
		s.query = q
	})
	entries, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.fail(err)
		return err
	}
	s.publish(q, entries, total)
	return nil
}

// publish replaces model and paging with new values and clears both flags.
func (s *Store) publish(q domain.Query, entries []domain.AuditEntry, total int) {
	page := &domain.AuditLogPage{Entries: entries, Query: q}
	paging := domain.NewPaging(q, total)
	s.update(func() {
		s.model = page
		s.paging = &paging
		s.query = q
		s.isLoading = false
		s.isSaving = false
		s.lastErr = nil
	})
}

func (s *Store) fail(err error) {
	s.update(func() {
		s.isLoading = false
		s.isSaving = false
		s.lastErr = err
	})
}

// update applies fn under the state lock, then emits change.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.emit()
}

// emit calls listeners in registration order without holding the state lock.
func (s *Store) emit() {
	s.mu.RLock()
	fns := make([]func(), len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
