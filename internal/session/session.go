// Package session holds the canonical in-memory state of one intake
// form: header fields plus the ordered equipment list. Every mutation
// funnels through here so row identifiers stay contiguous, the autosave
// engine sees each change, and the advisory record lock gates edits.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/autosave"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/snapshot"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// Mode is the entry protocol a session was opened with.
type Mode string

const (
	ModeFresh  Mode = "fresh"
	ModeDraft  Mode = "draft"
	ModeRecord Mode = "record"
)

// FormPatch carries header edits; nil fields stay untouched.
type FormPatch struct {
	ReceivedDate   *string
	CustomerDCDate *string
	CustomerID     *string
	CustomerName   *string
	ReceivedBy     *string
}

// LinePatch carries row edits; nil fields stay untouched. The outsource
// fields apply only while the row is routed to an outsourced supplier.
type LinePatch struct {
	MaterialDesc *string
	Make         *string
	Model        *string
	Range        *string
	SerialNo     *string
	Qty          *string
	InspeNotes   *string
	SupplierName *string
	OutboundDCNo *string
	InboundDCNo  *string
}

// Params wires a new session.
type Params struct {
	ID                 string
	Mode               Mode
	Owner              models.StaffActor
	RecordID           string
	DraftID            string
	Form               models.InwardForm
	Lines              []models.EquipmentLine
	StructuralEdits    bool
	SerialFromFallback bool
	CommitSerial       func() error
	Saver              autosave.Saver
	AutosaveCfg        autosave.Config
	Lock               *lockwatch.Watcher
	Logger             *zap.Logger
}

// Session is one open intake form.
type Session struct {
	id             string
	mode           Mode
	owner          models.StaffActor
	recordID       string
	structural     bool
	serialFallback bool
	commitSerial   func() error
	commitOnce     sync.Once

	mu         sync.RWMutex
	form       models.InwardForm
	lines      []models.EquipmentLine
	closed     bool
	createdAt  time.Time
	lastActive time.Time

	engine *autosave.Engine
	lock   *lockwatch.Watcher
	logger *zap.Logger
}

// New builds a session, wires its autosave engine to its own state, and
// starts the lock watcher when one is supplied. The engine baseline is
// the opening state: a resumed draft is already persisted and a fresh
// seed must not count as unsaved work.
func New(ctx context.Context, p Params) *Session {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now().UTC()
	s := &Session{
		id:             p.ID,
		mode:           p.Mode,
		owner:          p.Owner,
		recordID:       p.RecordID,
		structural:     p.StructuralEdits,
		serialFallback: p.SerialFromFallback,
		commitSerial:   p.CommitSerial,
		form:           p.Form,
		lines:          p.Lines,
		createdAt:      now,
		lastActive:     now,
		lock:           p.Lock,
		logger:         logger,
	}
	s.engine = autosave.NewEngine(p.Saver, s.snapshotNow, s.applyAck, p.AutosaveCfg, logger)
	s.engine.Start(ctx, p.DraftID, snapshot.Serialize(p.Form, p.Lines))
	if s.lock != nil {
		s.lock.Start(ctx)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the entry protocol.
func (s *Session) Mode() Mode { return s.mode }

// Owner returns the staff identity that opened the session.
func (s *Session) Owner() models.StaffActor { return s.owner }

// RecordID returns the committed record under edit, empty otherwise.
func (s *Session) RecordID() string { return s.recordID }

// StructuralEditsAllowed reports whether rows may be added or removed.
func (s *Session) StructuralEditsAllowed() bool { return s.structural }

// SerialFromFallback reports whether the inward number came from the
// local allocator rather than the numbering service.
func (s *Session) SerialFromFallback() bool { return s.serialFallback }

// CreatedAt returns the session open time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Engine exposes the autosave engine for status wiring.
func (s *Session) Engine() *autosave.Engine { return s.engine }

// LockWatcher exposes the lock watcher, nil for unlocked modes.
func (s *Session) LockWatcher() *lockwatch.Watcher { return s.lock }

// LockState returns the last observed lock state, zero when unwatched.
func (s *Session) LockState() models.LockState {
	if s.lock == nil {
		return models.LockState{}
	}
	return s.lock.State()
}

// LockedByOther reports whether another holder currently locks the
// record this session edits.
func (s *Session) LockedByOther() bool {
	if s.lock == nil {
		return false
	}
	return s.lock.LockedByOther(s.owner.UserID)
}

// Form returns a copy of the header state.
func (s *Session) Form() models.InwardForm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.form
}

// Lines returns a deep copy of the equipment list.
func (s *Session) Lines() []models.EquipmentLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.lines)
}

// Touch refreshes the idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// IdleSince returns the last activity time.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// PatchForm applies header edits. It returns applied=false without
// touching anything when the record is locked by someone else.
func (s *Session) PatchForm(patch FormPatch) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if s.LockedByOther() {
		return false, nil
	}

	s.mu.Lock()
	applyString(&s.form.ReceivedDate, patch.ReceivedDate)
	applyString(&s.form.CustomerDCDate, patch.CustomerDCDate)
	applyString(&s.form.CustomerID, patch.CustomerID)
	applyString(&s.form.CustomerName, patch.CustomerName)
	applyString(&s.form.ReceivedBy, patch.ReceivedBy)
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return true, nil
}

// PatchLine applies row edits.
func (s *Session) PatchLine(index int, patch LinePatch) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if s.LockedByOther() {
		return false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	line := &s.lines[index]

	wantsOutsource := patch.SupplierName != nil || patch.OutboundDCNo != nil || patch.InboundDCNo != nil
	if wantsOutsource && line.Routing != models.RoutingOutsourced {
		s.mu.Unlock()
		return false, appErrors.Clone(appErrors.ErrValidation, "outsource fields require outsourced routing")
	}

	applyString(&line.MaterialDesc, patch.MaterialDesc)
	applyString(&line.Make, patch.Make)
	applyString(&line.Model, patch.Model)
	applyString(&line.Range, patch.Range)
	applyString(&line.SerialNo, patch.SerialNo)
	applyString(&line.Qty, patch.Qty)
	applyString(&line.InspeNotes, patch.InspeNotes)
	if wantsOutsource {
		if line.Outsource == nil {
			line.Outsource = &models.OutsourceDetails{}
		}
		applyString(&line.Outsource.SupplierName, patch.SupplierName)
		applyString(&line.Outsource.OutboundDCNo, patch.OutboundDCNo)
		applyString(&line.Outsource.InboundDCNo, patch.InboundDCNo)
	}
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return true, nil
}

// AddLine appends a blank row numbered after the current last one.
func (s *Session) AddLine() (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if !s.structural {
		return false, appErrors.ErrStructuralEdit
	}
	if s.LockedByOther() {
		return false, nil
	}

	s.mu.Lock()
	s.lines = append(s.lines, models.EquipmentLine{
		ItemNo:  fmt.Sprintf("%s-%d", s.form.InwardNo, len(s.lines)+1),
		Routing: models.RoutingInHouse,
	})
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return true, nil
}

// RemoveLine drops a row and renumbers the remainder so identifiers stay
// contiguous. It returns the staged photo ids of the removed row so the
// caller can release their previews.
func (s *Session) RemoveLine(index int) ([]string, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	if !s.structural {
		return nil, false, appErrors.ErrStructuralEdit
	}
	if s.LockedByOther() {
		return nil, false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	if len(s.lines) == 1 {
		s.mu.Unlock()
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "the last equipment line cannot be removed")
	}
	removed := s.lines[index]
	staged := make([]string, 0, len(removed.Staged))
	for _, p := range removed.Staged {
		staged = append(staged, p.ID)
	}
	s.lines = append(s.lines[:index], s.lines[index+1:]...)
	Renumber(s.form.InwardNo, s.lines)
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return staged, true, nil
}

// SetRouting switches a row's calibration routing. Moving away from the
// outsourced variant discards the supplier and document references
// entirely rather than leaving stale values behind.
func (s *Session) SetRouting(index int, mode models.RoutingMode) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if !mode.Valid() {
		return false, appErrors.Clone(appErrors.ErrValidation, "unknown calibration routing")
	}
	if s.LockedByOther() {
		return false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	line := &s.lines[index]
	line.Routing = mode
	if mode == models.RoutingOutsourced {
		if line.Outsource == nil {
			line.Outsource = &models.OutsourceDetails{}
		}
	} else {
		line.Outsource = nil
	}
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return true, nil
}

// AttachStaged records a freshly staged photo on a row.
func (s *Session) AttachStaged(index int, photo models.StagedPhoto) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if s.LockedByOther() {
		return false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	s.lines[index].Staged = append(s.lines[index].Staged, photo)
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Changed()
	return true, nil
}

// RemoveStagedPhoto detaches one staged photo from a row. found reports
// whether the photo was present.
func (s *Session) RemoveStagedPhoto(index int, photoID string) (found, applied bool, err error) {
	if err := s.ensureOpen(); err != nil {
		return false, false, err
	}
	if s.LockedByOther() {
		return false, false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return false, false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	line := &s.lines[index]
	kept := line.Staged[:0]
	for _, p := range line.Staged {
		if p.ID == photoID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	line.Staged = kept
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	if found {
		s.engine.Changed()
	}
	return found, true, nil
}

// RemoveConfirmedPhoto delists a server-confirmed photo URL from a row.
func (s *Session) RemoveConfirmedPhoto(index int, url string) (found, applied bool, err error) {
	if err := s.ensureOpen(); err != nil {
		return false, false, err
	}
	if s.LockedByOther() {
		return false, false, nil
	}

	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return false, false, appErrors.Clone(appErrors.ErrNotFound, "equipment line not found")
	}
	line := &s.lines[index]
	kept := line.PhotoURLs[:0]
	for _, u := range line.PhotoURLs {
		if u == url {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	line.PhotoURLs = kept
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	if found {
		s.engine.Changed()
	}
	return found, true, nil
}

// SubmitState returns copies of the state a record submission needs.
func (s *Session) SubmitState() (models.InwardForm, []models.EquipmentLine, error) {
	if err := s.ensureOpen(); err != nil {
		return models.InwardForm{}, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.form, cloneLines(s.lines), nil
}

// MarkSubmitted records a successful commit: the fallback serial counter
// is burned and the status advances.
func (s *Session) MarkSubmitted(recordID string) {
	s.mu.Lock()
	s.recordID = recordID
	s.form.Status = models.StatusRegistered
	s.mu.Unlock()
	s.commitSerialOnce()
}

// Close tears the session down. Without force it refuses while unsaved
// changes exist, mirroring the navigation guard a browser form shows.
func (s *Session) Close(force bool) error {
	if err := s.engine.Close(force); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.lock != nil {
		s.lock.Stop()
	}
	return nil
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// snapshotNow feeds the autosave engine. Called without engine locks.
func (s *Session) snapshotNow() (string, models.DraftData) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot.Serialize(s.form, s.lines), snapshot.Payload(s.form, s.lines)
}

// applyAck merges a save acknowledgement back into live state. Only
// server-owned fields are overwritten: confirmed photo URLs. Staged
// files and unsent previews are never clobbered by the server echo.
func (s *Session) applyAck(ack models.DraftAck) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for i := range s.lines {
		if i >= len(ack.Data.EquipmentList) {
			break
		}
		s.lines[i].PhotoURLs = append([]string(nil), ack.Data.EquipmentList[i].PhotoURLs...)
	}
	s.mu.Unlock()

	s.commitSerialOnce()
}

func (s *Session) commitSerialOnce() {
	if s.commitSerial == nil {
		return
	}
	s.commitOnce.Do(func() {
		if err := s.commitSerial(); err != nil {
			s.logger.Warn("failed to commit fallback serial counter",
				zap.String("session_id", s.id), zap.Error(err))
		}
	})
}

func (s *Session) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return appErrors.ErrSessionClosed
	}
	return nil
}

// Renumber rewrites every row identifier from its 1-based position so
// the sequence {serial}-1..n never goes sparse or stale.
func Renumber(serial string, lines []models.EquipmentLine) {
	for i := range lines {
		lines[i].ItemNo = fmt.Sprintf("%s-%d", serial, i+1)
	}
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func cloneLines(lines []models.EquipmentLine) []models.EquipmentLine {
	out := make([]models.EquipmentLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.Outsource != nil {
			o := *l.Outsource
			out[i].Outsource = &o
		}
		out[i].Staged = append([]models.StagedPhoto(nil), l.Staged...)
		out[i].PhotoURLs = append([]string(nil), l.PhotoURLs...)
	}
	return out
}
