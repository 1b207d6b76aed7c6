// Package bridge mirrors an observable store into a caller-owned snapshot
// across an explicit activation lifecycle.
//
// A Bridge starts Inactive with a cold read of the store. Activate registers
// exactly one change listener, reads the store again and hands the snapshot to
// the render function. Every change notification re-reads the store and
// renders again. Deactivate removes the listener.
//
// A Bridge dropped while Active leaks its registration: the store keeps a live
// reference to a listener nobody reads. Pair every successful Activate with a
// Deactivate, typically with defer.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ChangeEvent is the only event a Bridge subscribes to.
const ChangeEvent = "change"

var (
	// ErrDoubleActivation is returned by Activate on an already active bridge.
	ErrDoubleActivation = errors.New("bridge already active")
	// ErrRegistration wraps a store error from AddListener.
	ErrRegistration = errors.New("listener registration failed")
	// ErrUnregister wraps a store error from RemoveListener.
	ErrUnregister = errors.New("listener removal failed")
)

// Handle identifies a listener registration held by a store.
type Handle string

// Snapshot is a point-in-time copy of a store's fields. Model and Paging are
// nil when absent. The values they point to belong to the store, which must
// publish new values rather than mutate ones it already handed out.
type Snapshot[M, P any] struct {
	IsLoading bool `json:"isLoading"`
	IsSaving  bool `json:"isSaving"`
	Model     *M   `json:"model,omitempty"`
	Paging    *P   `json:"paging,omitempty"`
}

// Store is the observable store contract a Bridge consumes. Notifications
// carry no payload; listeners re-read through Snapshot.
type Store[M, P any] interface {
	Snapshot() Snapshot[M, P]
	AddListener(event string, fn func()) (Handle, error)
	RemoveListener(h Handle) error
}

// RenderFunc receives every snapshot a bridge delivers. It must not call
// Activate or Deactivate on the bridge delivering to it, nor mutate the store
// synchronously. Deactivate waits for the delivery in progress, so a render
// that wants to stop its bridge hands the call to another goroutine.
type RenderFunc[M, P any] func(Snapshot[M, P])

// State is the lifecycle state of a Bridge.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts lifecycle events of one bridge.
type Stats struct {
	Activations uint64 `json:"activations"`
	Deliveries  uint64 `json:"deliveries"`
	Dropped     uint64 `json:"dropped"`
	Panics      uint64 `json:"panics"`
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger  *log.Logger
	onPanic func(any)
}

// WithLogger sets the logger used to report recovered render panics when no
// panic handler is set.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPanicHandler is called with the recovered value when a render function panics.
func WithPanicHandler(fn func(any)) Option {
	return func(o *options) { o.onPanic = fn }
}

// Bridge mirrors one store for one consumer.
type Bridge[M, P any] struct {
	store  Store[M, P]
	render RenderFunc[M, P]
	opts   options

	// deliverMu serializes activation and every refresh-and-deliver cycle so
	// deliveries follow notification order.
	deliverMu sync.Mutex

	mu       sync.Mutex
	state    State
	snapshot Snapshot[M, P]
	handle   Handle
	cycle    uint64
	stats    Stats
}

// New returns an Inactive bridge over store holding a cold read of it. No
// listener is registered. render may be nil, in which case nothing is delivered.
func New[M, P any](store Store[M, P], render RenderFunc[M, P], opts ...Option) *Bridge[M, P] {
	b := &Bridge[M, P]{store: store, render: render}
	for _, o := range opts {
		o(&b.opts)
	}
	b.snapshot = coldRead(store.Snapshot())
	return b
}

// coldRead derives IsLoading from the absence of a model; the store's own
// loading flag is only trusted once the bridge has refreshed from it.
func coldRead[M, P any](s Snapshot[M, P]) Snapshot[M, P] {
	s.IsLoading = s.Model == nil
	return s
}

// Activate registers the change listener, refreshes the snapshot and delivers
// it once. On failure the snapshot keeps its last value and nothing is delivered.
func (b *Bridge[M, P]) Activate() error {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.state == Active {
		b.mu.Unlock()
		return ErrDoubleActivation
	}
	b.cycle++
	cycle := b.cycle
	b.mu.Unlock()

	// Registering before the read means a change racing with activation is
	// either visible to the read or queued behind deliverMu.
	h, err := b.store.AddListener(ChangeEvent, func() { b.onChange(cycle) })
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}
	snap := b.store.Snapshot()

	b.mu.Lock()
	b.state = Active
	b.handle = h
	b.snapshot = snap
	b.stats.Activations++
	b.mu.Unlock()

	b.deliverCurrent(cycle)
	return nil
}

// Deactivate removes the listener registered by the last Activate. It is a
// no-op on an inactive bridge. The bridge is Inactive when Deactivate returns,
// even if the store fails to remove the listener.
//
// A delivery already rendering when Deactivate is called is waited for; once
// Deactivate returns, render is not running and will not be called again for
// this cycle. Like sync.Mutex, this is not reentrant: calling Deactivate from
// the bridge's own render deadlocks.
func (b *Bridge[M, P]) Deactivate() error {
	b.mu.Lock()
	if b.state != Active {
		b.mu.Unlock()
		return nil
	}
	b.state = Inactive
	h := b.handle
	b.handle = ""
	b.mu.Unlock()

	// Deliveries hold deliverMu from their cycle check until render returns.
	// Later ones see Inactive and drop.
	b.deliverMu.Lock()
	b.deliverMu.Unlock()

	if err := b.store.RemoveListener(h); err != nil {
		return fmt.Errorf("%w: %w", ErrUnregister, err)
	}
	return nil
}

// Snapshot returns the mirrored snapshot. On an inactive bridge this is the
// last read taken.
func (b *Bridge[M, P]) Snapshot() Snapshot[M, P] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// State reports the lifecycle state.
func (b *Bridge[M, P]) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Active reports whether the bridge holds a listener registration.
func (b *Bridge[M, P]) Active() bool {
	return b.State() == Active
}

// Stats returns a copy of the bridge counters.
func (b *Bridge[M, P]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Deliver calls render with the current snapshot. A panic in render is
// recovered and reported, never propagated to the caller.
func (b *Bridge[M, P]) Deliver(render RenderFunc[M, P]) {
	if render == nil {
		return
	}
	snap := b.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.stats.Panics++
			b.mu.Unlock()
			switch {
			case b.opts.onPanic != nil:
				b.opts.onPanic(r)
			case b.opts.logger != nil:
				b.opts.logger.Printf("bridge: render panicked: %v", r)
			}
		}
	}()
	b.mu.Lock()
	b.stats.Deliveries++
	b.mu.Unlock()
	render(snap)
}

func (b *Bridge[M, P]) onChange(cycle uint64) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	if !b.current(cycle) {
		return
	}
	snap := b.store.Snapshot()

	b.mu.Lock()
	if b.state != Active || b.cycle != cycle {
		b.stats.Dropped++
		b.mu.Unlock()
		return
	}
	b.snapshot = snap
	b.mu.Unlock()

	b.deliverCurrent(cycle)
}

// deliverCurrent renders unless the cycle ended in the meantime.
func (b *Bridge[M, P]) deliverCurrent(cycle uint64) {
	if !b.current(cycle) {
		return
	}
	b.Deliver(b.render)
}

// current reports whether cycle is the live activation, counting a dropped
// notification when it is not.
func (b *Bridge[M, P]) current(cycle uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Active && b.cycle == cycle {
		return true
	}
	b.stats.Dropped++
	return false
}
