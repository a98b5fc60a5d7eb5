// Package lockwatch observes the advisory record lock held by the
// upstream lock service. It is strictly read-only: the watcher never
// acquires or releases anything, it only reports what the source says.
package lockwatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// Source fetches the authoritative lock state for a (kind, id) pair.
type Source interface {
	Fetch(ctx context.Context, kind, id string) (models.LockState, error)
}

// Watcher polls a Source at a fixed interval and keeps the latest
// observation available for synchronous checks. Every observation
// replaces the whole state; nothing is toggled from a remembered delta,
// so a missed poll or a repeated payload cannot leave the gate stale.
type Watcher struct {
	source   Source
	kind     string
	id       string
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	state    models.LockState
	observed bool
	subs     map[int]func(models.LockState)
	nextSub  int

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWatcher builds a watcher for one record. Start must be called before
// observations happen; until then State reports unlocked.
func NewWatcher(source Source, kind, id string, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:   source,
		kind:     kind,
		id:       id,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]func(models.LockState)),
		done:     make(chan struct{}),
	}
}

// Start fetches once immediately and then polls until Stop or context
// cancellation. Calling Start twice is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop halts polling and waits for the loop to exit. Safe to call more
// than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-w.done
}

// State returns the last observed lock state.
func (w *Watcher) State() models.LockState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Locked reports whether the record is locked by anyone.
func (w *Watcher) Locked() bool {
	return w.State().Locked
}

// LockedByOther reports whether the record is locked by a holder other
// than the given identity. An unknown holder counts as someone else.
func (w *Watcher) LockedByOther(identity string) bool {
	state := w.State()
	if !state.Locked {
		return false
	}
	return state.Holder == "" || state.Holder != identity
}

// Subscribe registers a callback invoked on every lock transition,
// including the first observation. The returned cancel func is
// idempotent. Callbacks run on the poll goroutine and must not block.
func (w *Watcher) Subscribe(fn func(models.LockState)) func() {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
}

// Refresh forces one immediate observation outside the poll schedule.
func (w *Watcher) Refresh(ctx context.Context) error {
	state, err := w.source.Fetch(ctx, w.kind, w.id)
	if err != nil {
		return err
	}
	w.apply(state)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	w.observe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.observe(ctx)
		}
	}
}

func (w *Watcher) observe(ctx context.Context) {
	state, err := w.source.Fetch(ctx, w.kind, w.id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Keep the last observation; the lock is advisory and the
		// server remains the final arbiter of conflicting writes.
		w.logger.Warn("lock fetch failed",
			zap.String("kind", w.kind),
			zap.String("id", w.id),
			zap.Error(err))
		return
	}
	w.apply(state)
}

func (w *Watcher) apply(state models.LockState) {
	if state.ObservedAt.IsZero() {
		state.ObservedAt = time.Now().UTC()
	}

	w.mu.Lock()
	changed := !w.observed || !w.state.Same(state)
	w.state = state
	w.observed = true
	var fns []func(models.LockState)
	if changed {
		fns = make([]func(models.LockState), 0, len(w.subs))
		for _, fn := range w.subs {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
