// Package autosave runs the debounced draft-save cycle for one intake
// session. The engine owns the timers and the saved-state baseline; the
// session owns the form state and hands the engine pure projections of it.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/snapshot"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// State is the autosave lifecycle position.
type State string

const (
	StateIdle    State = "idle"
	StateUnsaved State = "unsaved"
	StateSaving  State = "saving"
	StateSaved   State = "saved"
	StateError   State = "error"
)

// Saver persists one draft payload upstream. An empty draftID asks the
// service to allocate one; the ack echoes the id either way.
type Saver interface {
	SaveDraft(ctx context.Context, draftID string, data models.DraftData) (*models.DraftAck, error)
}

// SnapshotFunc returns the current serialized snapshot together with the
// matching save payload. The engine calls it without holding its own
// lock, so the implementation may take the session lock freely.
type SnapshotFunc func() (string, models.DraftData)

// AckFunc merges a successful save acknowledgement back into session
// state. It must not call back into the engine; the engine re-evaluates
// for further divergence by itself once the merge returns.
type AckFunc func(models.DraftAck)

// Config tunes the engine timers.
type Config struct {
	DebounceDelay time.Duration
	RetryDelay    time.Duration
}

// Status is a point-in-time view of the engine for API projection.
type Status struct {
	State       State
	DraftID     string
	Dirty       bool
	LastSavedAt *time.Time
	LastError   string
}

// envelope is one captured save attempt: the payload that went (or will
// go) on the wire plus the snapshot it was derived from, kept together
// so a retry resends exactly what failed.
type envelope struct {
	snapshot string
	payload  models.DraftData
}

// Engine drives the idle → unsaved → saving → saved/error cycle. Saves
// never overlap: the debounce timer is single-slot and re-armed (not
// stacked) on every change, and a failed save parks its envelope for a
// single pending retry instead of queueing.
type Engine struct {
	saver  Saver
	snap   SnapshotFunc
	onAck  AckFunc
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	state       State
	draftID     string
	baseline    string
	lastSavedAt *time.Time
	lastErr     string
	inFlight    bool
	failed      *envelope
	debounce    *time.Timer
	debounceGen int
	retry       *time.Timer
	closed      bool

	onState func(Status)
}

// NewEngine builds an engine. onAck may be nil when nothing needs the
// server echo merged back.
func NewEngine(saver Saver, snap SnapshotFunc, onAck AckFunc, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		saver:  saver,
		snap:   snap,
		onAck:  onAck,
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
	}
}

// Start arms the engine. baseline is the serialization of the state the
// session was opened with: a resumed draft is already persisted, and a
// fresh form with nothing typed must not count as unsaved work.
func (e *Engine) Start(ctx context.Context, draftID, baseline string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil || e.closed {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.draftID = draftID
	e.baseline = baseline
}

// OnTransition registers a callback invoked after every state change.
// It runs on engine goroutines and must not block.
func (e *Engine) OnTransition(fn func(Status)) {
	e.mu.Lock()
	e.onState = fn
	e.mu.Unlock()
}

// Changed tells the engine the session state may have moved. Where the
// current snapshot differs from the baseline, any pending debounce timer
// is cancelled and a new one armed, so rapid edits keep pushing the save
// out and exactly one request fires per quiet period.
func (e *Engine) Changed() {
	e.evaluate()
}

// DraftID returns the adopted draft identifier, empty until the first
// successful save of a fresh form.
func (e *Engine) DraftID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draftID
}

// Dirty reports whether the current snapshot diverges from the last
// successfully saved one.
func (e *Engine) Dirty() bool {
	cur, _ := e.snap()
	e.mu.Lock()
	defer e.mu.Unlock()
	return cur != e.baseline
}

// Status returns the engine view without touching session state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Close shuts the engine down. Without force, unsaved divergence refuses
// the close so the caller can confirm with the user first. Close is
// idempotent and cancels any pending debounce or retry.
func (e *Engine) Close(force bool) error {
	if !force && e.Dirty() {
		return appErrors.ErrUnsavedChanges
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.debounceGen++
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// evaluate is the shared divergence check behind Changed and the
// post-save re-examination.
func (e *Engine) evaluate() {
	cur, _ := e.snap()

	e.mu.Lock()
	if e.closed || e.ctx == nil {
		e.mu.Unlock()
		return
	}
	if e.inFlight || e.failed != nil {
		// A save or its retry owns the next slot; edits made now are
		// picked up by the re-evaluation that follows its completion.
		e.mu.Unlock()
		return
	}
	if cur == e.baseline {
		e.debounceGen++
		if e.debounce != nil {
			e.debounce.Stop()
			e.debounce = nil
		}
		changed := e.transitionLocked(e.cleanStateLocked())
		e.mu.Unlock()
		if changed {
			e.emit()
		}
		return
	}

	e.debounceGen++
	gen := e.debounceGen
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.cfg.DebounceDelay, func() { e.fire(gen) })
	changed := e.transitionLocked(StateUnsaved)
	e.mu.Unlock()
	if changed {
		e.emit()
	}
}

// fire runs when a debounce timer expires. The generation guard ensures
// only the most recently armed timer proceeds; earlier ones are
// cancelled, not executed.
func (e *Engine) fire(gen int) {
	e.mu.Lock()
	if e.closed || gen != e.debounceGen || e.inFlight {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	// Capture at fire time so the save carries the state from the last
	// edit within the quiet window.
	cur, payload := e.snap()

	e.mu.Lock()
	if e.closed || gen != e.debounceGen || e.inFlight {
		e.mu.Unlock()
		return
	}
	e.debounce = nil
	if cur == e.baseline {
		changed := e.transitionLocked(e.cleanStateLocked())
		e.mu.Unlock()
		if changed {
			e.emit()
		}
		return
	}
	e.inFlight = true
	e.transitionLocked(StateSaving)
	ctx := e.ctx
	draftID := e.draftID
	e.mu.Unlock()
	e.emit()

	e.persist(ctx, draftID, envelope{snapshot: cur, payload: payload})
}

func (e *Engine) persist(ctx context.Context, draftID string, env envelope) {
	ack, err := e.saver.SaveDraft(ctx, draftID, env.payload)
	if err != nil {
		e.handleFailure(env, err)
		return
	}
	e.handleSuccess(*ack, env)
}

func (e *Engine) handleSuccess(ack models.DraftAck, env envelope) {
	savedAt := ack.UpdatedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.draftID == "" && ack.DraftID != "" {
		e.draftID = ack.DraftID
	}
	// The baseline becomes the snapshot that was sent, not a freshly
	// recomputed one: edits made during the round-trip must still read
	// as divergence.
	e.baseline = env.snapshot
	e.lastSavedAt = &savedAt
	e.lastErr = ""
	e.failed = nil
	e.inFlight = false
	e.transitionLocked(StateSaved)
	onAck := e.onAck
	e.mu.Unlock()

	if onAck != nil {
		onAck(ack)
	}
	e.emit()
	e.evaluate()
}

func (e *Engine) handleFailure(env envelope, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.inFlight = false
	e.lastErr = err.Error()
	e.transitionLocked(StateError)
	if snapshot.HasContent(env.payload) {
		e.failed = &env
		e.retry = time.AfterFunc(e.cfg.RetryDelay, e.retryFire)
	} else {
		e.failed = nil
	}
	e.mu.Unlock()

	e.logger.Warn("draft autosave failed", zap.String("inward_no", env.payload.InwardNo), zap.Error(err))
	e.emit()
}

// retryFire resends the envelope captured at failure time. A newer state
// is never substituted mid-retry; once the captured payload lands, the
// follow-up evaluate schedules any further delta.
func (e *Engine) retryFire() {
	e.mu.Lock()
	if e.closed || e.failed == nil || e.inFlight {
		e.mu.Unlock()
		return
	}
	env := *e.failed
	e.retry = nil
	e.inFlight = true
	e.transitionLocked(StateSaving)
	ctx := e.ctx
	draftID := e.draftID
	e.mu.Unlock()
	e.emit()

	e.persist(ctx, draftID, env)
}

// transitionLocked records the new state and reports whether it changed.
func (e *Engine) transitionLocked(to State) bool {
	if e.state == to {
		return false
	}
	e.state = to
	return true
}

func (e *Engine) cleanStateLocked() State {
	if e.lastSavedAt != nil {
		return StateSaved
	}
	return StateIdle
}

func (e *Engine) statusLocked() Status {
	dirty := e.state == StateUnsaved || e.state == StateSaving || e.state == StateError
	return Status{
		State:       e.state,
		DraftID:     e.draftID,
		Dirty:       dirty,
		LastSavedAt: e.lastSavedAt,
		LastError:   e.lastErr,
	}
}

func (e *Engine) emit() {
	e.mu.Lock()
	fn := e.onState
	status := e.statusLocked()
	e.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}
