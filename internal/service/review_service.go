package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/upstream"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/urlx"
)

type reviewLinkStore interface {
	Insert(ctx context.Context, link *models.ReviewLink) error
	Get(ctx context.Context, id string) (*models.ReviewLink, error)
	MarkFirstUsed(ctx context.Context, id string, at time.Time) error
	RevokeByRecord(ctx context.Context, recordID string) error
}

type reviewRecordGateway interface {
	GetRecord(ctx context.Context, id string) (*models.InwardRecord, error)
	UpdateStatus(ctx context.Context, id string, status models.RecordStatus) error
}

type remarkSubmitter interface {
	SubmitRemarks(ctx context.Context, recordID string, items []upstream.RemarkItem) error
}

// ReviewDeps wires the collaborators of the customer review flow.
type ReviewDeps struct {
	Links   reviewLinkStore
	Records reviewRecordGateway
	Remarks remarkSubmitter
	Locks   lockwatch.Source
	Auth    *AuthService
	Audit   *AuditService
	Cache   *CacheService
	Metrics *MetricsService
}

// ReviewConfig carries the review-flow settings.
type ReviewConfig struct {
	PublicBaseURL string
	PhotoOrigin   string
	LinkTTL       time.Duration
}

// ReviewService owns the customer review leg: staff issue a tokenised link
// for a committed record, the customer opens it (optionally through an
// access code), annotates rows and finalizes. Pending remarks live in the
// gateway until finalize pushes the full set upstream in one call.
type ReviewService struct {
	deps     ReviewDeps
	cfg      ReviewConfig
	validate *validator.Validate
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]map[string]string // link id -> item no -> remark
}

// NewReviewService constructs the review flow service.
func NewReviewService(deps ReviewDeps, cfg ReviewConfig, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 7 * 24 * time.Hour
	}
	return &ReviewService{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		pending:  map[string]map[string]string{},
	}
}

// IssueLink mints a review link for a committed record, retires any earlier
// links for the same record and marks the record as sent for review. The
// returned URL embeds a review token bound to the new link.
func (s *ReviewService) IssueLink(ctx context.Context, recordID string, req dto.IssueReviewLinkRequest, actor models.StaffActor) (*dto.ReviewLinkView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review link request")
	}

	rec, err := s.deps.Records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var codeHash *string
	if req.AccessCode != "" {
		hash, err := s.deps.Auth.HashAccessCode(req.AccessCode)
		if err != nil {
			return nil, err
		}
		codeHash = &hash
	}

	ttl := s.cfg.LinkTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	now := time.Now().UTC()
	link := &models.ReviewLink{
		ID:             uuid.NewString(),
		RecordID:       rec.ID,
		CustomerID:     rec.CustomerID,
		AccessCodeHash: codeHash,
		IssuedBy:       actor.UserID,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}

	if err := s.deps.Links.RevokeByRecord(ctx, rec.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire previous review links")
	}
	if err := s.deps.Links.Insert(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review link")
	}

	token, _, err := s.deps.Auth.IssueReviewToken(link.ID, rec.ID, rec.CustomerID, codeHash == nil, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Records.UpdateStatus(ctx, rec.ID, models.StatusSentForReview); err != nil {
		return nil, err
	}
	if err := s.deps.Cache.Invalidate(ctx, recordCachePattern(rec.ID)); err != nil {
		s.logger.Warn("record cache invalidation failed", zap.String("record_id", rec.ID), zap.Error(err))
	}

	s.deps.Audit.StaffAction(actor, models.AuditActionReviewLinkIssue, "review_link", link.ID, map[string]any{
		"record_id":       rec.ID,
		"has_access_code": codeHash != nil,
		"expires_at":      link.ExpiresAt,
	})

	return &dto.ReviewLinkView{
		LinkID:        link.ID,
		URL:           s.reviewURL(token),
		ExpiresAt:     link.ExpiresAt,
		HasAccessCode: codeHash != nil,
	}, nil
}

// Unlock exchanges a code-restricted token plus the correct access code for
// a full review token. Links issued without a code unlock trivially.
func (s *ReviewService) Unlock(ctx context.Context, claims *models.ReviewClaims, req dto.UnlockReviewRequest) (*dto.ReviewTokenView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unlock request")
	}

	link, err := s.loadLink(ctx, claims)
	if err != nil {
		return nil, err
	}
	if link.AccessCodeHash != nil {
		if err := s.deps.Auth.CheckAccessCode(*link.AccessCodeHash, req.AccessCode); err != nil {
			return nil, err
		}
	}
	s.markFirstUsed(ctx, link)

	token, expiresAt, err := s.deps.Auth.IssueReviewToken(link.ID, link.RecordID, link.CustomerID, true, time.Until(link.ExpiresAt))
	if err != nil {
		return nil, err
	}
	return &dto.ReviewTokenView{Token: token, ExpiresAt: expiresAt}, nil
}

// GetRecord returns the record behind the caller's review link.
func (s *ReviewService) GetRecord(ctx context.Context, claims *models.ReviewClaims) (*dto.ReviewRecordView, error) {
	link, err := s.authorize(ctx, claims)
	if err != nil {
		return nil, err
	}
	rec, err := s.deps.Records.GetRecord(ctx, link.RecordID)
	if err != nil {
		return nil, err
	}
	s.markFirstUsed(ctx, link)
	view := s.reviewView(ctx, link, rec)
	return &view, nil
}

// SetRemark stores a per-line annotation for the review. The remark stays
// in the gateway until finalize; an empty remark clears a stored one. A
// staff lock on the record gates the change into an applied=false no-op.
func (s *ReviewService) SetRemark(ctx context.Context, claims *models.ReviewClaims, lineID string, req dto.SetRemarkRequest) (*dto.ReviewMutationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remark")
	}

	link, err := s.authorize(ctx, claims)
	if err != nil {
		return nil, err
	}
	rec, err := s.deps.Records.GetRecord(ctx, link.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusReviewed {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "")
	}

	if state, gated := s.lockGate(ctx, link, rec.ID, "remark"); gated {
		view := s.reviewViewWithLock(link, rec, state)
		return &dto.ReviewMutationResult{Applied: false, Record: view}, nil
	}

	if !hasLine(rec.EquipmentList, lineID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "equipment row not found")
	}

	s.setPending(link.ID, lineID, req.Remark)
	view := s.reviewView(ctx, link, rec)
	return &dto.ReviewMutationResult{Applied: true, Record: view}, nil
}

// Finalize pushes the full remark set upstream, defaults untouched rows to
// the standard acknowledgement and marks the record customer-reviewed. A
// staff lock gates the finalize into an applied=false no-op; a record that
// is already reviewed refuses with a conflict.
func (s *ReviewService) Finalize(ctx context.Context, claims *models.ReviewClaims) (*dto.ReviewMutationResult, error) {
	link, err := s.authorize(ctx, claims)
	if err != nil {
		return nil, err
	}
	rec, err := s.deps.Records.GetRecord(ctx, link.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusReviewed {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "")
	}

	if state, gated := s.lockGate(ctx, link, rec.ID, "finalize"); gated {
		view := s.reviewViewWithLock(link, rec, state)
		return &dto.ReviewMutationResult{Applied: false, Record: view}, nil
	}

	items := make([]upstream.RemarkItem, 0, len(rec.EquipmentList))
	overrides := s.pendingFor(link.ID)
	for i := range rec.EquipmentList {
		line := &rec.EquipmentList[i]
		remark := line.Remark
		if v, ok := overrides[line.ItemNo]; ok {
			remark = v
		}
		if strings.TrimSpace(remark) == "" {
			remark = models.RemarkOK
		}
		line.Remark = remark
		items = append(items, upstream.RemarkItem{LineID: line.ItemNo, Remark: remark})
	}

	if err := s.deps.Remarks.SubmitRemarks(ctx, rec.ID, items); err != nil {
		return nil, err
	}
	if err := s.deps.Records.UpdateStatus(ctx, rec.ID, models.StatusReviewed); err != nil {
		return nil, err
	}
	rec.Status = models.StatusReviewed

	s.clearPending(link.ID)
	if err := s.deps.Cache.Invalidate(ctx, recordCachePattern(rec.ID)); err != nil {
		s.logger.Warn("record cache invalidation failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
	s.deps.Audit.CustomerAction(link.CustomerID, models.AuditActionReviewFinalize, "inward_record", rec.ID, map[string]any{
		"link_id": link.ID,
	})

	view := s.reviewView(ctx, link, rec)
	return &dto.ReviewMutationResult{Applied: true, Record: view}, nil
}

// loadLink resolves and vets the link behind a validated review token.
func (s *ReviewService) loadLink(ctx context.Context, claims *models.ReviewClaims) (*models.ReviewLink, error) {
	link, err := s.deps.Links.Get(ctx, claims.LinkID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "review link no longer valid")
	}
	if link.Revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "review link has been superseded")
	}
	if time.Now().After(link.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "review link expired")
	}
	if link.RecordID != claims.RecordID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "review token mismatch")
	}
	return link, nil
}

// authorize is loadLink plus the access-code gate for record access.
func (s *ReviewService) authorize(ctx context.Context, claims *models.ReviewClaims) (*models.ReviewLink, error) {
	link, err := s.loadLink(ctx, claims)
	if err != nil {
		return nil, err
	}
	if link.AccessCodeHash != nil && !claims.CodeOK {
		return nil, appErrors.Clone(appErrors.ErrAccessCode, "access code required")
	}
	return link, nil
}

// lockGate reads the live lock state. Any active staff lock gates customer
// mutations; a lock source outage is treated as unlocked but logged.
func (s *ReviewService) lockGate(ctx context.Context, link *models.ReviewLink, recordID, op string) (models.LockState, bool) {
	if s.deps.Locks == nil {
		return models.LockState{}, false
	}
	state, err := s.deps.Locks.Fetch(ctx, "record", recordID)
	if err != nil {
		s.logger.Warn("lock state unavailable during review",
			zap.String("record_id", recordID), zap.String("op", op), zap.Error(err))
		return models.LockState{}, false
	}
	if !state.Locked {
		return state, false
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveLockDenied()
	}
	s.deps.Audit.CustomerAction(link.CustomerID, models.AuditActionLockDenied, "inward_record", recordID, map[string]any{
		"op":     op,
		"holder": state.Holder,
	})
	return state, true
}

func (s *ReviewService) markFirstUsed(ctx context.Context, link *models.ReviewLink) {
	if link.FirstUsedAt != nil {
		return
	}
	now := time.Now().UTC()
	if err := s.deps.Links.MarkFirstUsed(ctx, link.ID, now); err != nil {
		s.logger.Warn("failed to mark review link used", zap.String("link_id", link.ID), zap.Error(err))
		return
	}
	link.FirstUsedAt = &now
}

func (s *ReviewService) reviewView(ctx context.Context, link *models.ReviewLink, rec *models.InwardRecord) dto.ReviewRecordView {
	var state models.LockState
	if s.deps.Locks != nil {
		if fetched, err := s.deps.Locks.Fetch(ctx, "record", rec.ID); err == nil {
			state = fetched
		} else {
			s.logger.Warn("lock state unavailable during review",
				zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
	return s.reviewViewWithLock(link, rec, state)
}

func (s *ReviewService) reviewViewWithLock(link *models.ReviewLink, rec *models.InwardRecord, state models.LockState) dto.ReviewRecordView {
	overrides := s.pendingFor(link.ID)
	lines := make([]dto.ReviewLineView, 0, len(rec.EquipmentList))
	for _, l := range rec.EquipmentList {
		remark := l.Remark
		if v, ok := overrides[l.ItemNo]; ok {
			remark = v
		}
		lines = append(lines, dto.ReviewLineView{
			ItemNo:       l.ItemNo,
			MaterialDesc: l.MaterialDesc,
			Make:         l.Make,
			Model:        l.Model,
			Range:        l.Range,
			SerialNo:     l.SerialNo,
			Qty:          l.Qty,
			InspeNotes:   l.InspeNotes,
			PhotoURLs:    urlx.JoinAll(s.cfg.PhotoOrigin, l.PhotoURLs),
			Remark:       remark,
		})
	}
	return dto.ReviewRecordView{
		RecordID:     rec.ID,
		InwardNo:     rec.InwardNo,
		CustomerName: rec.CustomerName,
		ReceivedDate: rec.ReceivedDate,
		Status:       rec.Status,
		Lock:         dto.LockView{Locked: state.Locked, Holder: state.Holder},
		Lines:        lines,
		Finalized:    rec.Status == models.StatusReviewed,
	}
}

func (s *ReviewService) reviewURL(token string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return base + "/review?token=" + url.QueryEscape(token)
}

func (s *ReviewService) setPending(linkID, lineID, remark string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remark == "" {
		if m, ok := s.pending[linkID]; ok {
			delete(m, lineID)
			if len(m) == 0 {
				delete(s.pending, linkID)
			}
		}
		return
	}
	m, ok := s.pending[linkID]
	if !ok {
		m = map[string]string{}
		s.pending[linkID] = m
	}
	m[lineID] = remark
}

func (s *ReviewService) pendingFor(linkID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.pending[linkID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *ReviewService) clearPending(linkID string) {
	s.mu.Lock()
	delete(s.pending, linkID)
	s.mu.Unlock()
}

func hasLine(lines []models.RecordLine, itemNo string) bool {
	for _, l := range lines {
		if l.ItemNo == itemNo {
			return true
		}
	}
	return false
}
