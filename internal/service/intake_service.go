package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/attach"
	"github.com/instrolab/lims-portal-api/internal/autosave"
	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/session"
	"github.com/instrolab/lims-portal-api/internal/snapshot"
	"github.com/instrolab/lims-portal-api/internal/upstream"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/urlx"
)

type serialSource interface {
	NextInwardSerial(ctx context.Context) (string, error)
}

type draftReader interface {
	GetDraft(ctx context.Context, id string) (*upstream.DraftEnvelope, error)
}

type recordGateway interface {
	CreateRecord(ctx context.Context, data models.DraftData, photos []upstream.PhotoPart) (*models.InwardRecord, error)
	UpdateRecord(ctx context.Context, id string, data models.DraftData, photos []upstream.PhotoPart) (*models.InwardRecord, error)
	GetRecord(ctx context.Context, id string) (*models.InwardRecord, error)
}

type eventPublisher interface {
	PublishSessionEvent(sessionID, eventType string, payload any)
}

// instrumentedSaver decorates the upstream draft saver with autosave
// outcome metrics. The engine stays metrics-free.
type instrumentedSaver struct {
	next    autosave.Saver
	metrics *MetricsService
}

func (s instrumentedSaver) SaveDraft(ctx context.Context, draftID string, data models.DraftData) (*models.DraftAck, error) {
	start := time.Now()
	ack, err := s.next.SaveDraft(ctx, draftID, data)
	s.metrics.ObserveAutosave(err == nil, time.Since(start))
	return ack, err
}

// IntakeDeps wires the collaborators of the intake service.
type IntakeDeps struct {
	Sessions  *session.Manager
	Numbering serialSource
	Drafts    draftReader
	Saver     autosave.Saver
	Records   recordGateway
	Locks     lockwatch.Source
	Attach    *attach.Manager
	Fallback  *session.FallbackAllocator
	Audit     *AuditService
	Events    eventPublisher
	Metrics   *MetricsService
	Cache     *CacheService
}

// IntakeConfig tunes session behaviour.
type IntakeConfig struct {
	Autosave         autosave.Config
	LockPollInterval time.Duration
	IdleTTL          time.Duration
	PhotoOrigin      string
}

// IntakeService owns the lifecycle of intake sessions: opening in one of
// the three entry modes, funnelling every edit through the session state,
// and committing the result to the records service.
type IntakeService struct {
	deps     IntakeDeps
	cfg      IntakeConfig
	validate *validator.Validate
	logger   *zap.Logger
	baseCtx  context.Context
}

// NewIntakeService constructs the intake service.
func NewIntakeService(deps IntakeDeps, cfg IntakeConfig, logger *zap.Logger) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 12 * time.Hour
	}
	return &IntakeService{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Start binds session lifetimes to the process context so shutdown
// cancels every engine. Call once before serving.
func (s *IntakeService) Start(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// OpenSessions reports the number of live sessions, for gauges.
func (s *IntakeService) OpenSessions() int {
	return s.deps.Sessions.Len()
}

// Open starts an intake session in fresh, draft, or record mode.
func (s *IntakeService) Open(ctx context.Context, req dto.OpenSessionRequest, actor models.StaffActor) (*dto.SessionView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}

	var (
		form         models.InwardForm
		lines        []models.EquipmentLine
		draftID      string
		recordID     string
		structural   bool
		fallbackUsed bool
		commitSerial func() error
		lock         *lockwatch.Watcher
	)

	switch req.Mode {
	case dto.ModeFresh:
		serial, err := s.deps.Numbering.NextInwardSerial(ctx)
		if err != nil {
			s.logger.Warn("numbering service unavailable, using local fallback serial", zap.Error(err))
			serial, commitSerial, err = s.deps.Fallback.Reserve(time.Now())
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
					"failed to allocate inward serial")
			}
			fallbackUsed = true
		}
		form, lines = session.FreshState(serial, time.Now().UTC().Format("2006-01-02"), actor.FullName)
		structural = true

	case dto.ModeDraft:
		env, err := s.deps.Drafts.GetDraft(ctx, req.DraftID)
		if err != nil {
			return nil, err
		}
		form, lines, err = session.ReconcileDraft(env.Data)
		if err != nil {
			return nil, err
		}
		draftID = env.DraftID
		structural = true

	case dto.ModeRecord:
		rec, err := s.deps.Records.GetRecord(ctx, req.RecordID)
		if err != nil {
			return nil, err
		}
		form, lines = session.ReconcileRecord(*rec)
		recordID = rec.ID
		lock = lockwatch.NewWatcher(s.deps.Locks, "record", rec.ID, s.cfg.LockPollInterval, s.logger)

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown session mode")
	}

	sess := session.New(s.baseCtx, session.Params{
		ID:                 uuid.NewString(),
		Mode:               session.Mode(req.Mode),
		Owner:              actor,
		RecordID:           recordID,
		DraftID:            draftID,
		Form:               form,
		Lines:              lines,
		StructuralEdits:    structural,
		SerialFromFallback: fallbackUsed,
		CommitSerial:       commitSerial,
		Saver:              instrumentedSaver{next: s.deps.Saver, metrics: s.deps.Metrics},
		AutosaveCfg:        s.cfg.Autosave,
		Lock:               lock,
		Logger:             s.logger,
	})
	s.wireEvents(sess)
	s.deps.Sessions.Put(sess)

	s.deps.Audit.StaffAction(actor, models.AuditActionSessionOpen, "intake_session", sess.ID(),
		map[string]string{"mode": req.Mode, "inward_no": form.InwardNo})

	view := s.view(sess)
	return &view, nil
}

// Get returns the current session projection.
func (s *IntakeService) Get(ctx context.Context, id string, actor models.StaffActor) (*dto.SessionView, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	view := s.view(sess)
	return &view, nil
}

// PatchForm applies header edits.
func (s *IntakeService) PatchForm(ctx context.Context, id string, req dto.UpdateFormRequest, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	applied, err := sess.PatchForm(session.FormPatch{
		ReceivedDate:   req.ReceivedDate,
		CustomerDCDate: req.CustomerDCDate,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		ReceivedBy:     req.ReceivedBy,
	})
	if err != nil {
		return nil, err
	}
	return s.mutationResult(sess, actor, applied), nil
}

// PatchLine applies row edits.
func (s *IntakeService) PatchLine(ctx context.Context, id string, index int, req dto.UpdateLineRequest, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	applied, err := sess.PatchLine(index, session.LinePatch{
		MaterialDesc: req.MaterialDesc,
		Make:         req.Make,
		Model:        req.Model,
		Range:        req.Range,
		SerialNo:     req.SerialNo,
		Qty:          req.Qty,
		InspeNotes:   req.InspeNotes,
		SupplierName: req.SupplierName,
		OutboundDCNo: req.OutboundDCNo,
		InboundDCNo:  req.InboundDCNo,
	})
	if err != nil {
		return nil, err
	}
	return s.mutationResult(sess, actor, applied), nil
}

// AddLine appends a blank equipment row.
func (s *IntakeService) AddLine(ctx context.Context, id string, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	applied, err := sess.AddLine()
	if err != nil {
		return nil, err
	}
	return s.mutationResult(sess, actor, applied), nil
}

// RemoveLine drops a row, releasing any photos it had staged.
func (s *IntakeService) RemoveLine(ctx context.Context, id string, index int, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	staged, applied, err := sess.RemoveLine(index)
	if err != nil {
		return nil, err
	}
	if applied && len(staged) > 0 {
		s.deps.Attach.ReleasePhotos(sess.ID(), staged)
	}
	return s.mutationResult(sess, actor, applied), nil
}

// SetRouting switches a row's calibration routing.
func (s *IntakeService) SetRouting(ctx context.Context, id string, index int, req dto.SetRoutingRequest, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	applied, err := sess.SetRouting(index, models.RoutingMode(req.Mode))
	if err != nil {
		return nil, err
	}
	return s.mutationResult(sess, actor, applied), nil
}

// StagePhoto stores an uploaded photo locally and attaches it to a row.
// The file is written before the lock check resolves inside the session,
// so a race with a fresh lock releases the orphaned upload again.
func (s *IntakeService) StagePhoto(ctx context.Context, id string, index int, filename, contentType string, size int64, r io.Reader, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	if sess.LockedByOther() {
		return s.mutationResult(sess, actor, false), nil
	}

	photo, err := s.deps.Attach.Stage(sess.ID(), filename, contentType, size, r)
	if err != nil {
		return nil, err
	}
	applied, err := sess.AttachStaged(index, photo)
	if err != nil || !applied {
		s.deps.Attach.ReleasePhoto(sess.ID(), photo.ID)
	}
	if err != nil {
		return nil, err
	}
	return s.mutationResult(sess, actor, applied), nil
}

// RemoveStagedPhoto detaches a staged photo and releases its preview.
func (s *IntakeService) RemoveStagedPhoto(ctx context.Context, id string, index int, photoID string, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	found, applied, err := sess.RemoveStagedPhoto(index, photoID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.mutationResult(sess, actor, false), nil
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "staged photo not found")
	}
	s.deps.Attach.ReleasePhoto(sess.ID(), photoID)
	return s.mutationResult(sess, actor, true), nil
}

// RemoveConfirmedPhoto delists a server-confirmed photo URL from a row.
// The next save persists the shorter list; the upstream file itself is
// not touched from here.
func (s *IntakeService) RemoveConfirmedPhoto(ctx context.Context, id string, index int, url string, actor models.StaffActor) (*dto.MutationResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	found, applied, err := sess.RemoveConfirmedPhoto(index, url)
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.mutationResult(sess, actor, false), nil
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found on line")
	}
	return s.mutationResult(sess, actor, true), nil
}

// Preview resolves a staged photo preview token.
func (s *IntakeService) Preview(token string) (*os.File, string, error) {
	return s.deps.Attach.OpenPreview(token)
}

// Submit commits the session as a new record or an update of the one
// under edit. Staged photos ride along as multipart files; on success the
// session is torn down and its staging released.
func (s *IntakeService) Submit(ctx context.Context, id string, actor models.StaffActor) (*dto.SubmitResult, error) {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return nil, err
	}
	if sess.LockedByOther() {
		s.deps.Metrics.ObserveLockDenied()
		state := sess.LockState()
		s.deps.Audit.StaffAction(actor, models.AuditActionLockDenied, "intake_session", sess.ID(),
			dto.LockView{Locked: state.Locked, Holder: state.Holder})
		return &dto.SubmitResult{
			Applied:  false,
			InwardNo: sess.Form().InwardNo,
			Lock:     dto.LockView{Locked: state.Locked, Holder: state.Holder},
		}, nil
	}

	form, lines, err := sess.SubmitState()
	if err != nil {
		return nil, err
	}
	if err := validateSubmit(form, lines); err != nil {
		return nil, err
	}

	payload := snapshot.Payload(form, lines)
	photos, closePhotos, err := s.collectPhotos(sess.ID(), lines)
	if err != nil {
		return nil, err
	}
	defer closePhotos()

	var rec *models.InwardRecord
	if sess.Mode() == session.ModeRecord {
		rec, err = s.deps.Records.UpdateRecord(ctx, sess.RecordID(), payload, photos)
	} else {
		rec, err = s.deps.Records.CreateRecord(ctx, payload, photos)
	}
	if err != nil {
		return nil, err
	}

	sess.MarkSubmitted(rec.ID)
	if err := sess.Close(true); err != nil {
		s.logger.Warn("session close after submit", zap.String("session_id", sess.ID()), zap.Error(err))
	}
	s.deps.Sessions.Remove(sess.ID())
	s.deps.Attach.ReleaseSession(sess.ID())
	if err := s.deps.Cache.Invalidate(ctx, recordCachePattern(rec.ID)); err != nil {
		s.logger.Warn("record cache invalidation failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
	s.deps.Audit.StaffAction(actor, models.AuditActionRecordSubmit, "inward_record", rec.ID,
		map[string]string{"inward_no": rec.InwardNo, "session_id": sess.ID()})

	return &dto.SubmitResult{
		Applied:  true,
		RecordID: rec.ID,
		InwardNo: rec.InwardNo,
		Status:   rec.Status,
	}, nil
}

// Close tears a session down. Without force it refuses while unsaved
// changes exist so the UI can confirm with the user.
func (s *IntakeService) Close(ctx context.Context, id string, force bool, actor models.StaffActor) error {
	sess, err := s.deps.Sessions.GetOwned(id, actor)
	if err != nil {
		return err
	}
	if err := sess.Close(force); err != nil {
		return err
	}
	s.deps.Sessions.Remove(id)
	s.deps.Attach.ReleaseSession(id)
	s.deps.Audit.StaffAction(actor, models.AuditActionSessionClose, "intake_session", id,
		map[string]bool{"force": force})
	return nil
}

// SweepIdle force-closes sessions idle beyond the configured TTL and
// returns how many were reaped.
func (s *IntakeService) SweepIdle() int {
	stale := s.deps.Sessions.CollectIdle(s.cfg.IdleTTL)
	for _, sess := range stale {
		if err := sess.Close(true); err != nil {
			s.logger.Warn("idle session close failed", zap.String("session_id", sess.ID()), zap.Error(err))
		}
		s.deps.Attach.ReleaseSession(sess.ID())
		s.logger.Info("idle session swept",
			zap.String("session_id", sess.ID()),
			zap.Time("last_active", sess.IdleSince()))
	}
	return len(stale)
}

// RunIdleSweeper periodically sweeps idle sessions until the context ends.
func (s *IntakeService) RunIdleSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

// Shutdown force-closes every open session.
func (s *IntakeService) Shutdown() {
	for _, sess := range s.deps.Sessions.Drain() {
		if err := sess.Close(true); err != nil {
			s.logger.Warn("session close on shutdown", zap.String("session_id", sess.ID()), zap.Error(err))
		}
		s.deps.Attach.ReleaseSession(sess.ID())
	}
}

// wireEvents forwards autosave and lock transitions to subscribers of the
// session's event stream.
func (s *IntakeService) wireEvents(sess *session.Session) {
	id := sess.ID()
	sess.Engine().OnTransition(func(st autosave.Status) {
		if s.deps.Events == nil {
			return
		}
		s.deps.Events.PublishSessionEvent(id, "autosave_state", autosaveView(st))
	})
	if w := sess.LockWatcher(); w != nil {
		w.Subscribe(func(state models.LockState) {
			s.deps.Metrics.ObserveLockTransition(state.Locked)
			if s.deps.Events == nil {
				return
			}
			s.deps.Events.PublishSessionEvent(id, "lock_state", dto.LockView{Locked: state.Locked, Holder: state.Holder})
		})
	}
}

func (s *IntakeService) mutationResult(sess *session.Session, actor models.StaffActor, applied bool) *dto.MutationResult {
	if !applied {
		s.deps.Metrics.ObserveLockDenied()
		state := sess.LockState()
		s.deps.Audit.StaffAction(actor, models.AuditActionLockDenied, "intake_session", sess.ID(),
			dto.LockView{Locked: state.Locked, Holder: state.Holder})
	}
	view := s.view(sess)
	return &dto.MutationResult{Applied: applied, Session: view}
}

func (s *IntakeService) view(sess *session.Session) dto.SessionView {
	status := sess.Engine().Status()
	lockState := sess.LockState()
	view := dto.SessionView{
		ID:              sess.ID(),
		Mode:            string(sess.Mode()),
		RecordID:        sess.RecordID(),
		Form:            sess.Form(),
		Lines:           s.lineViews(sess.Lines()),
		Autosave:        autosaveView(status),
		Lock:            dto.LockView{Locked: lockState.Locked, Holder: lockState.Holder},
		StructuralEdits: sess.StructuralEditsAllowed(),
		SerialFromLocal: sess.SerialFromFallback(),
		CreatedAt:       sess.CreatedAt(),
	}
	if status.DraftID != "" {
		view.ResumePath = "/inward/drafts/" + status.DraftID
	}
	return view
}

func (s *IntakeService) lineViews(lines []models.EquipmentLine) []dto.LineView {
	out := make([]dto.LineView, 0, len(lines))
	for _, l := range lines {
		lv := dto.LineView{
			ItemNo:          l.ItemNo,
			MaterialDesc:    l.MaterialDesc,
			Make:            l.Make,
			Model:           l.Model,
			Range:           l.Range,
			SerialNo:        l.SerialNo,
			Qty:             l.Qty,
			InspeNotes:      l.InspeNotes,
			CalibrationMode: l.Routing,
			Outsource:       l.Outsource,
			Photos:          make([]dto.PhotoView, 0, len(l.Staged)+len(l.PhotoURLs)),
			HasDeviation:    l.HasDeviation(),
		}
		for _, p := range l.Staged {
			lv.Photos = append(lv.Photos, dto.PhotoView{ID: p.ID, Filename: p.Filename, URL: p.PreviewURL})
		}
		for _, u := range urlx.JoinAll(s.cfg.PhotoOrigin, l.PhotoURLs) {
			lv.Photos = append(lv.Photos, dto.PhotoView{URL: u, Confirmed: true})
		}
		out = append(out, lv)
	}
	return out
}

// collectPhotos opens every staged photo as a multipart part, in line
// order. The returned closer must run after the upstream call finishes.
func (s *IntakeService) collectPhotos(sessionID string, lines []models.EquipmentLine) ([]upstream.PhotoPart, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	parts := make([]upstream.PhotoPart, 0)
	for i, l := range lines {
		for _, p := range l.Staged {
			f, err := s.deps.Attach.OpenPhoto(sessionID, p.ID)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			files = append(files, f)
			parts = append(parts, upstream.PhotoPart{LineIndex: i, Filename: p.Filename, Reader: f})
		}
	}
	return parts, closeAll, nil
}

func autosaveView(st autosave.Status) dto.AutosaveView {
	return dto.AutosaveView{
		State:       string(st.State),
		DraftID:     st.DraftID,
		Dirty:       st.Dirty,
		LastSavedAt: st.LastSavedAt,
		LastError:   st.LastError,
	}
}

func recordCachePattern(recordID string) string {
	return "record:" + recordID + "*"
}

// validateSubmit enforces the blocking checks a commit must pass; the
// autosave path deliberately skips these so partial drafts keep saving.
func validateSubmit(form models.InwardForm, lines []models.EquipmentLine) error {
	if strings.TrimSpace(form.ReceivedDate) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "received date is required")
	}
	if strings.TrimSpace(form.CustomerName) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "customer name is required")
	}
	if strings.TrimSpace(form.ReceivedBy) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "received by is required")
	}
	for _, l := range lines {
		if strings.TrimSpace(l.MaterialDesc) == "" {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("line %s needs a material description", l.ItemNo))
		}
		if l.Routing == models.RoutingOutsourced {
			if l.Outsource == nil || strings.TrimSpace(l.Outsource.SupplierName) == "" {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("line %s is outsourced and needs a supplier", l.ItemNo))
			}
		}
	}
	return nil
}
